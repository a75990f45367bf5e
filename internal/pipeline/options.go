package pipeline

import (
	"github.com/Iron-Ham/phyling/internal/logging"
)

// Option configures a Pipeline.
type Option func(*pipelineConfig)

// pipelineConfig holds optional settings for the Pipeline.
type pipelineConfig struct {
	logger  *logging.Logger
	threads int
}

// WithLogger sets the logger. Entries are tagged with marker and stage.
func WithLogger(logger *logging.Logger) Option {
	return func(c *pipelineConfig) {
		c.logger = logger
	}
}

// WithThreads sets the thread count passed to each tool (default 1).
func WithThreads(n int) Option {
	return func(c *pipelineConfig) {
		c.threads = n
	}
}
