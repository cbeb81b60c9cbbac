package api

import "math/rand/v2"

// Policy 根据单架无人机的观测给出动作，对应训练脚本中的 model.predict。
type Policy interface {
	Predict(obs []float32) []float64
}

// RandomPolicy 在给定上下界内均匀采样动作。
type RandomPolicy struct {
	Low, High []float64
	rng       *rand.Rand
}

// NewRandomPolicy 是 RandomPolicy 的构造函数。
func NewRandomPolicy(low, high []float64, seed uint64) *RandomPolicy {
	return &RandomPolicy{
		Low:  low,
		High: high,
		rng:  rand.New(rand.NewPCG(seed, seed^0xdecaf)),
	}
}

// Predict 忽略观测，返回一个随机动作。
func (p *RandomPolicy) Predict(_ []float32) []float64 {
	a := make([]float64, len(p.Low))
	for i := range a {
		a[i] = p.Low[i] + p.rng.Float64()*(p.High[i]-p.Low[i])
	}
	return a
}
