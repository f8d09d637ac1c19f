package bid

import (
	"go.uber.org/zap"

	"github.com/chainsafe/earn-bid/pkg/config"
)

type settings struct {
	logger   *zap.Logger
	labels   config.LabelsConfig
	observer func(Status)
}

// Option configures a workflow.
type Option func(*settings)

// WithLogger sets a custom logger for the workflow.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLabels overrides the default display labels.
func WithLabels(l config.LabelsConfig) Option {
	return func(s *settings) { s.labels = l }
}

// WithObserver registers a callback invoked after every status change. The
// callback runs outside the workflow lock.
func WithObserver(fn func(Status)) Option {
	return func(s *settings) { s.observer = fn }
}

func applyOptions(opts []Option) settings {
	s := settings{
		logger: zap.NewNop(),
		labels: config.DefaultLabels(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}
