package collector

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/adriengoldszal/SwarmRL/environment"
)

// EpisodeSummary 是 episodes 表中的一行。
type EpisodeSummary struct {
	RunID      string
	Episode    int
	MapName    string
	NAgents    int
	NTargets   int
	Steps      int
	Return     float64
	Rescued    int
	Conflicts  int
	Terminated bool
	Truncated  bool
	RecordedAt string
}

// EpisodeIndex 把 episode 汇总写入 SQLite，便于跨多次训练运行查询。
// 步记录不落库，逐步数据由 TrajectoryRecorder 负责。
type EpisodeIndex struct {
	db    *sql.DB
	runID string

	mu     sync.Mutex // 保护 ch 的发送与关闭
	ch     chan environment.EpisodeRecord
	closed bool
	wg     sync.WaitGroup
	once   sync.Once
}

var _ environment.StepObserver = (*EpisodeIndex)(nil)

// NewRunID 生成一次训练运行的唯一标识。
func NewRunID() string { return uuid.NewString() }

// OpenEpisodeIndex 打开 (或创建) path 处的数据库，runID 为空时自动生成。
func OpenEpisodeIndex(path, runID string) (*EpisodeIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if runID == "" {
		runID = NewRunID()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	idx := &EpisodeIndex{
		db:    db,
		runID: runID,
		ch:    make(chan environment.EpisodeRecord, 4096),
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.loop()
	}()
	return idx, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS episodes (
			run_id TEXT NOT NULL,
			episode INTEGER NOT NULL,
			map_name TEXT NOT NULL,
			n_agents INTEGER NOT NULL,
			n_targets INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			ep_return REAL NOT NULL,
			rescued INTEGER NOT NULL,
			conflicts INTEGER NOT NULL,
			terminated INTEGER NOT NULL,
			truncated INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, episode)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_map ON episodes(map_name, run_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// RunID 返回本次运行的标识。
func (x *EpisodeIndex) RunID() string { return x.runID }

// CollectStep 实现 environment.StepObserver，episode 汇总已经包含所需的统计。
func (x *EpisodeIndex) CollectStep(environment.StepRecord) {}

// CollectEpisode 实现 environment.StepObserver。
func (x *EpisodeIndex) CollectEpisode(rec environment.EpisodeRecord) {
	if x == nil {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	select {
	case x.ch <- rec:
	default:
		log.Printf("⚠️ [Episode %d] 索引写入队列已满，丢弃记录", rec.Episode)
	}
}

func (x *EpisodeIndex) loop() {
	for rec := range x.ch {
		if err := x.insert(rec); err != nil {
			log.Printf("❌ [Episode %d] 写入索引失败: %v", rec.Episode, err)
		}
	}
}

func (x *EpisodeIndex) insert(rec environment.EpisodeRecord) error {
	_, err := x.db.Exec(
		`INSERT OR REPLACE INTO episodes
			(run_id, episode, map_name, n_agents, n_targets, steps, ep_return, rescued, conflicts, terminated, truncated, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		x.runID, rec.Episode, rec.MapName, rec.NAgents, rec.NTargets, rec.Steps, rec.Return,
		rec.Rescued, rec.Conflicts, boolInt(rec.Terminated), boolInt(rec.Truncated),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Episodes 返回 runID 的所有 episode 汇总，按 episode 编号排序。
// 队列中尚未写入的记录不可见，需要完整结果时先调用 Flush。
func (x *EpisodeIndex) Episodes(ctx context.Context, runID string) ([]EpisodeSummary, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT run_id, episode, map_name, n_agents, n_targets, steps, ep_return, rescued, conflicts, terminated, truncated, recorded_at
			FROM episodes WHERE run_id = ? ORDER BY episode`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EpisodeSummary
	for rows.Next() {
		var s EpisodeSummary
		var terminated, truncated int
		if err := rows.Scan(&s.RunID, &s.Episode, &s.MapName, &s.NAgents, &s.NTargets, &s.Steps, &s.Return,
			&s.Rescued, &s.Conflicts, &terminated, &truncated, &s.RecordedAt); err != nil {
			return nil, err
		}
		s.Terminated, s.Truncated = terminated != 0, truncated != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// RunSummary 是一次运行在索引中的概况。
type RunSummary struct {
	RunID      string
	Episodes   int
	MeanReturn float64
}

// Runs 按首次写入时间列出库中的所有运行。
func (x *EpisodeIndex) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT run_id, COUNT(*), AVG(ep_return) FROM episodes
			GROUP BY run_id ORDER BY MIN(recorded_at)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Episodes, &r.MeanReturn); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Flush 停止接收新记录并等待队列写完，数据库仍可查询。
func (x *EpisodeIndex) Flush() {
	x.once.Do(func() {
		x.mu.Lock()
		x.closed = true
		close(x.ch)
		x.mu.Unlock()
		x.wg.Wait()
	})
}

// Close 写完剩余记录并关闭数据库。
func (x *EpisodeIndex) Close() error {
	x.Flush()
	return x.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
