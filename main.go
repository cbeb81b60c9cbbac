// C:/workspace/go/SwarmRL/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"google.golang.org/grpc"

	"github.com/adriengoldszal/SwarmRL/api"
	"github.com/adriengoldszal/SwarmRL/collector"
	"github.com/adriengoldszal/SwarmRL/config"
	"github.com/adriengoldszal/SwarmRL/environment"
)

func main() {
	configPath := flag.String("config", "config.yaml", "YAML 配置文件路径")
	mode := flag.String("mode", "server", "运行模式: server (gRPC 环境服务) 或 demo (随机策略演示)")
	flag.Parse()

	if err := run(*configPath, *mode); err != nil {
		log.Fatalf("❌ %v", err)
	}

	log.Println("=============================================")
	log.Println("===========  SIMULATION FINISHED  ===========")
	log.Println("=============================================")
}

// run 加载配置并按 mode 运行。数据收集器在返回前关闭，报告总会落盘。
func run(configPath, mode string) (err error) {
	if mode != "server" && mode != "demo" {
		return fmt.Errorf("未知运行模式 %q", mode)
	}

	cfg, err := config.Load(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("未找到配置文件 %s，使用默认配置", configPath)
		cfg = config.Default()
	case err != nil:
		return fmt.Errorf("加载配置失败: %w", err)
	}

	log.Println("=============================================")
	log.Println("======  Swarm Rescue Market Environment  ======")
	log.Println("=============================================")
	log.Printf("加载配置: 地图 %s, %d 架无人机, %d 名伤员, 每步 %d 个物理子步, 共享奖励 %v",
		cfg.Env.MapName, cfg.Env.NAgents, cfg.Env.NTargets, cfg.Env.FixedStep, cfg.Env.ShareReward)

	observers, err := openObservers(cfg.Report)
	if err != nil {
		return fmt.Errorf("初始化数据收集器失败: %w", err)
	}
	defer func() {
		if cerr := observers.Close(); cerr != nil {
			log.Printf("❌ 关闭数据收集器时出错: %v", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	env, err := environment.New(cfg.EnvConfig(), observers)
	if err != nil {
		return fmt.Errorf("创建环境失败: %w", err)
	}

	if mode == "demo" {
		return runDemo(env, cfg.Demo.Episodes)
	}
	return serve(cfg.Server.Address, env)
}

// openObservers 按 report 配置创建 Excel 报告、轨迹日志和 episode 索引。
func openObservers(rc config.Report) (collector.Fanout, error) {
	var out collector.Fanout
	runID := collector.NewRunID()
	if rc.Excel {
		out = append(out, collector.NewDataCollector(rc.Dir))
	}
	if rc.Trajectory {
		rec, err := collector.NewTrajectoryRecorder(filepath.Join(rc.Dir, "trajectories"), runID)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		log.Printf("🗂️  轨迹日志: %s", rec.Path())
		out = append(out, rec)
	}
	if rc.IndexDB != "" {
		idx, err := collector.OpenEpisodeIndex(rc.IndexDB, runID)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		out = append(out, idx)
	}
	log.Printf("本次运行 ID: %s", runID)
	return out, nil
}

// serve 启动 gRPC 环境服务，收到中断信号后优雅退出。
func serve(addr string, env *environment.Env) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := grpc.NewServer()
	api.RegisterRLEnvironmentServer(srv, environment.NewServer(env))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("... 收到退出信号，正在停止服务 ...")
		srv.GracefulStop()
	}()

	log.Printf("🛰️  gRPC 环境服务已在 %s 上启动", lis.Addr())
	return srv.Serve(lis)
}

// runDemo 用随机策略在进程内跑若干个 episode，并打印每个 episode 的回报。
func runDemo(env *environment.Env, episodes int) error {
	nTargets := env.Config().NTargets
	low, high := environment.ActionBounds(nTargets)
	policies := make([]api.Policy, env.Config().NAgents)
	for i := range policies {
		policies[i] = api.NewRandomPolicy(low, high, env.Config().Seed+uint64(i))
	}

	for ep := 0; ep < episodes; ep++ {
		obs, err := env.Reset()
		if err != nil {
			return err
		}
		var total float64
		for {
			actions := make([][]float64, len(policies))
			for i, p := range policies {
				actions[i] = p.Predict(obs[i])
			}
			res, err := env.Step(actions)
			if err != nil {
				return err
			}
			total += res.Rewards[0]
			obs = res.Observations
			if res.Dones[0] {
				log.Printf("🎬 [Episode %d] 回报 %.2f, 步数 %d, 救出 %d 人, 终止=%v 截断=%v",
					env.Episode(), total, res.Info.Step, res.Info.RescuedCount, res.Terminated, res.Truncated)
				break
			}
		}
	}
	return nil
}
