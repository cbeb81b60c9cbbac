package api

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ResetRequest 请求开始一个新的 episode。
type ResetRequest struct{}

// ResetReply 携带每架无人机的初始观测。
type ResetReply struct {
	Observations [][]float32
	Info         map[string]any
}

// StepRequest 携带每架无人机的动作向量。
type StepRequest struct {
	Actions [][]float64
}

// StepReply 是一个逻辑步的结果。
type StepReply struct {
	Observations [][]float32
	Rewards      []float64
	Dones        []bool
	Info         map[string]any
}

// ToStruct 把 ResetRequest 转换为线上格式。
func (r ResetRequest) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{})
}

// ToStruct 把 ResetReply 转换为线上格式。
func (r ResetReply) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"observations": float32Matrix(r.Observations),
		"info":         infoOrEmpty(r.Info),
	})
}

// ToStruct 把 StepRequest 转换为线上格式。
func (r StepRequest) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"actions": float64Matrix(r.Actions),
	})
}

// ToStruct 把 StepReply 转换为线上格式。
func (r StepReply) ToStruct() (*structpb.Struct, error) {
	dones := make([]any, len(r.Dones))
	for i, d := range r.Dones {
		dones[i] = d
	}
	return structpb.NewStruct(map[string]any{
		"observations": float32Matrix(r.Observations),
		"rewards":      float64List(r.Rewards),
		"dones":        dones,
		"info":         infoOrEmpty(r.Info),
	})
}

// ParseResetReply 从线上格式解析 ResetReply。
func ParseResetReply(s *structpb.Struct) (ResetReply, error) {
	m := s.AsMap()
	obs, err := parseFloat32Matrix(m["observations"])
	if err != nil {
		return ResetReply{}, fmt.Errorf("observations: %w", err)
	}
	info, _ := m["info"].(map[string]any)
	return ResetReply{Observations: obs, Info: info}, nil
}

// ParseStepRequest 从线上格式解析 StepRequest。
func ParseStepRequest(s *structpb.Struct) (StepRequest, error) {
	raw, ok := s.AsMap()["actions"]
	if !ok {
		return StepRequest{}, fmt.Errorf("missing field \"actions\"")
	}
	rows, err := parseFloat64Matrix(raw)
	if err != nil {
		return StepRequest{}, fmt.Errorf("actions: %w", err)
	}
	return StepRequest{Actions: rows}, nil
}

// ParseStepReply 从线上格式解析 StepReply。
func ParseStepReply(s *structpb.Struct) (StepReply, error) {
	m := s.AsMap()
	obs, err := parseFloat32Matrix(m["observations"])
	if err != nil {
		return StepReply{}, fmt.Errorf("observations: %w", err)
	}
	rewards, err := parseFloat64List(m["rewards"])
	if err != nil {
		return StepReply{}, fmt.Errorf("rewards: %w", err)
	}
	rawDones, _ := m["dones"].([]any)
	dones := make([]bool, len(rawDones))
	for i, v := range rawDones {
		b, ok := v.(bool)
		if !ok {
			return StepReply{}, fmt.Errorf("dones[%d]: expected bool, got %T", i, v)
		}
		dones[i] = b
	}
	info, _ := m["info"].(map[string]any)
	return StepReply{Observations: obs, Rewards: rewards, Dones: dones, Info: info}, nil
}

func infoOrEmpty(info map[string]any) map[string]any {
	if info == nil {
		return map[string]any{}
	}
	return info
}

func float64List(v []float64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

func float64Matrix(rows [][]float64) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = float64List(r)
	}
	return out
}

func float32Matrix(rows [][]float32) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		row := make([]any, len(r))
		for j, x := range r {
			row[j] = float64(x)
		}
		out[i] = row
	}
	return out
}

func parseFloat64List(v any) ([]float64, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	out := make([]float64, len(list))
	for i, x := range list {
		f, ok := x.(float64)
		if !ok {
			return nil, fmt.Errorf("[%d]: expected number, got %T", i, x)
		}
		out[i] = f
	}
	return out, nil
}

func parseFloat64Matrix(v any) ([][]float64, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list of lists, got %T", v)
	}
	out := make([][]float64, len(list))
	for i, row := range list {
		r, err := parseFloat64List(row)
		if err != nil {
			return nil, fmt.Errorf("[%d]%w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

func parseFloat32Matrix(v any) ([][]float32, error) {
	rows, err := parseFloat64Matrix(v)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(rows))
	for i, r := range rows {
		out[i] = make([]float32, len(r))
		for j, x := range r {
			out[i][j] = float32(x)
		}
	}
	return out, nil
}
