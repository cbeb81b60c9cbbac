package collector

import (
	"errors"
	"io"

	"github.com/adriengoldszal/SwarmRL/environment"
)

// Fanout 把记录转发给多个观察者，并负责按顺序关闭它们。
type Fanout []environment.StepObserver

// CollectStep 实现 environment.StepObserver。
func (f Fanout) CollectStep(rec environment.StepRecord) {
	for _, o := range f {
		o.CollectStep(rec)
	}
}

// CollectEpisode 实现 environment.StepObserver。
func (f Fanout) CollectEpisode(rec environment.EpisodeRecord) {
	for _, o := range f {
		o.CollectEpisode(rec)
	}
}

// Close 关闭所有实现了 io.Closer 的观察者，返回合并后的错误。
func (f Fanout) Close() error {
	var errs []error
	for _, o := range f {
		if c, ok := o.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
