// Package logging provides the scoped per-attempt log collector handed to
// job handlers. Entries are captured in order for the attempt's JobResult and
// mirrored to the process logger with the job id as correlation id.
package logging

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/models"
)

// Collector captures leveled log entries for one job execution attempt
type Collector struct {
	logger  arbor.ILogger
	mu      sync.Mutex
	entries []models.JobLogEntry
}

// NewCollector creates a collector scoped to one attempt of one job
func NewCollector(logger arbor.ILogger, jobID string) *Collector {
	return &Collector{
		logger: logger.WithCorrelationId(jobID),
	}
}

func (c *Collector) append(level models.LogLevel, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, models.JobLogEntry{
		Level:     level,
		Message:   msg,
		Timestamp: time.Now(),
	})
}

// Info records an info-level message
func (c *Collector) Info(msg string) {
	c.logger.Info().Msg(msg)
	c.append(models.LogLevelInfo, msg)
}

// Infof records a formatted info-level message
func (c *Collector) Infof(format string, args ...interface{}) {
	c.Info(fmt.Sprintf(format, args...))
}

// Warn records a warn-level message
func (c *Collector) Warn(msg string) {
	c.logger.Warn().Msg(msg)
	c.append(models.LogLevelWarn, msg)
}

// Warnf records a formatted warn-level message
func (c *Collector) Warnf(format string, args ...interface{}) {
	c.Warn(fmt.Sprintf(format, args...))
}

// Error records an error-level message
func (c *Collector) Error(msg string) {
	c.logger.Error().Msg(msg)
	c.append(models.LogLevelError, msg)
}

// Errorf records a formatted error-level message
func (c *Collector) Errorf(format string, args ...interface{}) {
	c.Error(fmt.Sprintf(format, args...))
}

// Entries returns a copy of the captured entries in order
func (c *Collector) Entries() []models.JobLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.JobLogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
