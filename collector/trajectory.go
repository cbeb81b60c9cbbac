package collector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/adriengoldszal/SwarmRL/environment"
)

// trajectoryEntry 是轨迹文件中的一行，Kind 区分步记录和 episode 汇总。
type trajectoryEntry struct {
	Kind    string                     `json:"kind"`
	RunID   string                     `json:"run_id"`
	Step    *trajectoryStep            `json:"step,omitempty"`
	Episode *environment.EpisodeRecord `json:"episode,omitempty"`
}

// trajectoryStep 覆盖 StepRecord 的 bids 字段。出价是策略的原始输出，
// 可能是 ±Inf 或 NaN，encoding/json 无法直接编码。
type trajectoryStep struct {
	environment.StepRecord
	Bids [][]jsonFloat `json:"bids"`
}

func newTrajectoryStep(rec environment.StepRecord) *trajectoryStep {
	bids := make([][]jsonFloat, len(rec.Bids))
	for i, row := range rec.Bids {
		bids[i] = make([]jsonFloat, len(row))
		for j, v := range row {
			bids[i][j] = jsonFloat(v)
		}
	}
	return &trajectoryStep{StepRecord: rec, Bids: bids}
}

func (s *trajectoryStep) record() environment.StepRecord {
	rec := s.StepRecord
	rec.Bids = make([][]float64, len(s.Bids))
	for i, row := range s.Bids {
		rec.Bids[i] = make([]float64, len(row))
		for j, v := range row {
			rec.Bids[i][j] = float64(v)
		}
	}
	return rec
}

// jsonFloat 把非有限值编码为字符串 "NaN"、"+Inf"、"-Inf"，有限值仍是 JSON 数字。
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("decode bid %q: %w", b, err)
	}
	*f = jsonFloat(v)
	return nil
}

// TrajectoryRecorder 把每一步的出价、分配和奖励写成 zstd 压缩的 JSONL，
// 用于离线回放和分析。
type TrajectoryRecorder struct {
	path  string
	runID string

	mu      sync.Mutex
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	err     error
	skipped int // 无法编码而被跳过的记录
}

var _ environment.StepObserver = (*TrajectoryRecorder)(nil)

// NewTrajectoryRecorder 在 dir 下创建 <runID>.jsonl.zst。
func NewTrajectoryRecorder(dir, runID string) (*TrajectoryRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.jsonl.zst", runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &TrajectoryRecorder{
		path:  path,
		runID: runID,
		f:     f,
		enc:   enc,
		w:     bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Path 返回轨迹文件路径。
func (r *TrajectoryRecorder) Path() string { return r.path }

// CollectStep 实现 environment.StepObserver。
func (r *TrajectoryRecorder) CollectStep(rec environment.StepRecord) {
	r.write(trajectoryEntry{Kind: "step", RunID: r.runID, Step: newTrajectoryStep(rec)})
}

// CollectEpisode 实现 environment.StepObserver。
func (r *TrajectoryRecorder) CollectEpisode(rec environment.EpisodeRecord) {
	r.write(trajectoryEntry{Kind: "episode", RunID: r.runID, Episode: &rec})
}

// Err 返回第一次写入失败的错误。单条记录编码失败只会跳过该记录，不算写入失败。
func (r *TrajectoryRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Skipped 返回因无法编码而被跳过的记录数。
func (r *TrajectoryRecorder) Skipped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

func (r *TrajectoryRecorder) write(v trajectoryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil || r.w == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		if r.skipped == 0 {
			log.Printf("⚠️  [轨迹] 记录无法编码，已跳过: %v", err)
		}
		r.skipped++
		return
	}
	b = append(b, '\n')
	if _, err := r.w.Write(b); err != nil {
		r.err = err
		log.Printf("❌ [轨迹] 写入 %s 失败，后续记录不再写入: %v", r.path, err)
	}
}

// Close 刷新缓冲并关闭文件。
func (r *TrajectoryRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return r.err
	}
	flushErr := r.w.Flush()
	encErr := r.enc.Close()
	fileErr := r.f.Close()
	r.w, r.enc, r.f = nil, nil, nil
	for _, err := range []error{r.err, flushErr, encErr, fileErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadTrajectory 解压并解析一个轨迹文件，返回其中的步记录和 episode 汇总。
func ReadTrajectory(path string) ([]environment.StepRecord, []environment.EpisodeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, nil, err
	}
	defer dec.Close()

	var steps []environment.StepRecord
	var episodes []environment.EpisodeRecord
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e trajectoryEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, nil, fmt.Errorf("decode trajectory line: %w", err)
		}
		switch {
		case e.Step != nil:
			steps = append(steps, e.Step.record())
		case e.Episode != nil:
			episodes = append(episodes, *e.Episode)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return steps, episodes, nil
}
