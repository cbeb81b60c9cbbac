// C:/workspace/go/SwarmRL/collector/collector.go
package collector

import (
	"fmt"
	"log"
	"os"            // 导入 os 包用于文件系统操作
	"path/filepath" // 导入 path/filepath 包用于处理文件路径
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/adriengoldszal/SwarmRL/environment"
)

const (
	stepSheet    = "Step_Stats"
	episodeSheet = "Episode_Stats"
)

// DataCollector 把每一步和每个 episode 的统计写入 Excel 报告。
// 记录通过 channel 交给后台 goroutine，环境线程不会被文件写入阻塞。
type DataCollector struct {
	filename string
	records  chan any
	wg       sync.WaitGroup
	once     sync.Once

	f          *excelize.File
	stepRow    int
	episodeRow int
}

var _ environment.StepObserver = (*DataCollector)(nil)

// NewDataCollector 创建一个新的数据收集器实例，并启动后台写入。
func NewDataCollector(reportDir string) *DataCollector {
	// 1. 创建一个带时间戳的基础文件名
	baseFilename := fmt.Sprintf("swarm_results_%s.xlsx", time.Now().Format("20060102_150405"))

	dc := &DataCollector{
		filename:   filepath.Join(reportDir, baseFilename),
		records:    make(chan any, 1024),
		f:          excelize.NewFile(),
		stepRow:    2,
		episodeRow: 2,
	}
	dc.initSheets()

	dc.wg.Add(1)
	go dc.run()
	log.Printf("📊 数据收集器已启动，报告将保存到 %s", dc.filename)
	return dc
}

// Filename 返回报告文件的完整路径。
func (dc *DataCollector) Filename() string { return dc.filename }

func (dc *DataCollector) initSheets() {
	_, _ = dc.f.NewSheet(stepSheet)
	_, _ = dc.f.NewSheet(episodeSheet)
	_ = dc.f.DeleteSheet("Sheet1")

	// --- 写入表头 ---
	headersStep := []string{"Episode", "步数", "地图", "分配结果", "共享奖励", "平均个体奖励", "delta_distances", "探索增量", "冲突数", "累计救援", "终止", "截断"}
	_ = dc.f.SetSheetRow(stepSheet, "A1", &headersStep)

	headersEpisode := []string{"Episode", "地图", "无人机数", "伤员数", "步数", "累计奖励", "救出人数", "冲突数", "终止", "截断"}
	_ = dc.f.SetSheetRow(episodeSheet, "A1", &headersEpisode)
}

// CollectStep 实现 environment.StepObserver。
func (dc *DataCollector) CollectStep(rec environment.StepRecord) { dc.records <- rec }

// CollectEpisode 实现 environment.StepObserver。
func (dc *DataCollector) CollectEpisode(rec environment.EpisodeRecord) { dc.records <- rec }

func (dc *DataCollector) run() {
	defer dc.wg.Done()
	for r := range dc.records {
		switch rec := r.(type) {
		case environment.StepRecord:
			dc.writeStep(rec)
		case environment.EpisodeRecord:
			dc.writeEpisode(rec)
			log.Printf("📊 [Episode %d] 已记录: %d 步, 累计奖励 %.2f, 救出 %d 人", rec.Episode, rec.Steps, rec.Return, rec.Rescued)
		}
	}
}

func (dc *DataCollector) writeStep(rec environment.StepRecord) {
	var avgIndividual float64
	if len(rec.Individual) > 0 {
		for _, r := range rec.Individual {
			avgIndividual += r
		}
		avgIndividual /= float64(len(rec.Individual))
	}
	conflicts := 0
	for _, c := range rec.ConflictCount {
		conflicts += c
	}

	rowData := []interface{}{
		rec.Episode,
		rec.Step,
		rec.MapName,
		fmt.Sprint([]int(rec.Assignment)),
		rec.SharedReward,
		avgIndividual,
		rec.DistanceDelta,
		rec.ExplorationDelta,
		conflicts,
		rec.RescuedCount,
		rec.Terminated,
		rec.Truncated,
	}
	_ = dc.f.SetSheetRow(stepSheet, fmt.Sprintf("A%d", dc.stepRow), &rowData)
	dc.stepRow++
}

func (dc *DataCollector) writeEpisode(rec environment.EpisodeRecord) {
	rowData := []interface{}{
		rec.Episode,
		rec.MapName,
		rec.NAgents,
		rec.NTargets,
		rec.Steps,
		rec.Return,
		rec.Rescued,
		rec.Conflicts,
		rec.Terminated,
		rec.Truncated,
	}
	_ = dc.f.SetSheetRow(episodeSheet, fmt.Sprintf("A%d", dc.episodeRow), &rowData)
	dc.episodeRow++
}

// SaveFinalReport 停止接收记录，等待后台写入完成后保存 Excel 文件。
// 重复调用是安全的，只有第一次会真正保存。
func (dc *DataCollector) SaveFinalReport() error {
	var err error
	dc.once.Do(func() {
		close(dc.records)
		dc.wg.Wait()
		defer func() {
			if cerr := dc.f.Close(); cerr != nil {
				log.Printf("❌ 关闭Excel文件时出错: %v", cerr)
			}
		}()

		// 在保存文件之前，确保目标目录存在
		reportDir := filepath.Dir(dc.filename)
		if mkErr := os.MkdirAll(reportDir, 0o755); mkErr != nil {
			err = fmt.Errorf("create report dir %q: %w", reportDir, mkErr)
			return
		}
		if saveErr := dc.f.SaveAs(dc.filename); saveErr != nil {
			err = fmt.Errorf("save excel report: %w", saveErr)
			return
		}
		log.Printf("✅ 训练数据已成功保存到 %s", dc.filename)
	})
	return err
}

// Close 等同于 SaveFinalReport。
func (dc *DataCollector) Close() error { return dc.SaveFinalReport() }
