// C:/workspace/go/SwarmRL/config/config.go
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/adriengoldszal/SwarmRL/environment"
)

// ErrInvalidConfig 表示配置文件没有通过 schema 校验。
var ErrInvalidConfig = errors.New("invalid config")

//go:embed schema.json
var schemaJSON string

// ===================================================================
//                           环境参数
// ===================================================================

// Env 对应 config.yaml 中的 env 段。
type Env struct {
	MapName           string  `yaml:"map_name"`
	NAgents           int     `yaml:"n_agents"`
	NTargets          int     `yaml:"n_targets"`
	MapSize           float64 `yaml:"map_size"`
	MaxEpisodeSteps   int     `yaml:"max_episode_steps"`
	ContinuousAction  bool    `yaml:"continuous_action"`
	FixedStep         int     `yaml:"fixed_step"`
	ShareReward       bool    `yaml:"share_reward"`
	UseExpMap         bool    `yaml:"use_exp_map"`
	UseConflictReward bool    `yaml:"use_conflict_reward"`
	Seed              uint64  `yaml:"seed"`
	Verbose           bool    `yaml:"verbose"`
}

// ===================================================================
//                           服务与输出
// ===================================================================

// Server 对应 server 段。
type Server struct {
	Address string `yaml:"address"`
}

// Demo 对应 demo 段，控制演示模式运行的 episode 数量。
type Demo struct {
	Episodes int `yaml:"episodes"`
}

// Report 对应 report 段。IndexDB 为空时不写 SQLite 索引。
type Report struct {
	Dir        string `yaml:"dir"`
	Excel      bool   `yaml:"excel"`
	Trajectory bool   `yaml:"trajectory"`
	IndexDB    string `yaml:"index_db"`
}

// Config 是完整的配置文件。
type Config struct {
	Env    Env    `yaml:"env"`
	Server Server `yaml:"server"`
	Demo   Demo   `yaml:"demo"`
	Report Report `yaml:"report"`
}

// Default 返回与训练脚本一致的默认配置。
func Default() Config {
	env := environment.DefaultConfig()
	return Config{
		Env: Env{
			MapName:           env.MapName,
			NAgents:           env.NAgents,
			NTargets:          env.NTargets,
			MapSize:           env.MapSize,
			MaxEpisodeSteps:   env.MaxEpisodeSteps,
			ContinuousAction:  env.ContinuousAction,
			FixedStep:         env.FixedStep,
			ShareReward:       env.ShareReward,
			UseExpMap:         env.UseExpMap,
			UseConflictReward: env.UseConflictReward,
			Seed:              env.Seed,
			Verbose:           env.Verbose,
		},
		Server: Server{Address: ":50051"},
		Demo:   Demo{Episodes: 3},
		Report: Report{Dir: "report", Excel: true},
	}
}

// Load 读取并校验 path 处的 YAML 配置，未出现的字段保留默认值。
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(raw)
}

// Parse 校验并解析 YAML 内容。
func Parse(raw []byte) (Config, error) {
	if err := Validate(raw); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config.yaml: %w", err)
	}
	return cfg, nil
}

// Validate 把 YAML 转成 JSON 文档后用内嵌的 schema 校验。
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config.yaml: %w", err)
	}
	if doc == nil {
		return nil // 空文件，全部使用默认值
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	schema, err := jsonschema.CompileString("schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// EnvConfig 转换为环境构造函数使用的配置。
func (c Config) EnvConfig() environment.Config {
	return environment.Config{
		MapName:           c.Env.MapName,
		NAgents:           c.Env.NAgents,
		NTargets:          c.Env.NTargets,
		MapSize:           c.Env.MapSize,
		MaxEpisodeSteps:   c.Env.MaxEpisodeSteps,
		ContinuousAction:  c.Env.ContinuousAction,
		FixedStep:         c.Env.FixedStep,
		ShareReward:       c.Env.ShareReward,
		UseExpMap:         c.Env.UseExpMap,
		UseConflictReward: c.Env.UseConflictReward,
		Seed:              c.Env.Seed,
		Verbose:           c.Env.Verbose,
	}
}
