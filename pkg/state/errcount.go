package state

import (
	"go.uber.org/zap"
)

// ErrorCounter tracks consecutive reconciliation failures per channel.
// Counts survive restarts.
type ErrorCounter struct {
	file *mapFile[int]
}

// NewErrorCounter creates a counter backed by the JSON file at path
func NewErrorCounter(path string, logger *zap.Logger) *ErrorCounter {
	return &ErrorCounter{
		file: &mapFile[int]{path: path, logger: logger.Named("error_counter")},
	}
}

// Init makes sure the backing file exists and holds a valid mapping
func (c *ErrorCounter) Init() {
	_ = c.file.snapshot()
}

// Get returns the current count for channelID
func (c *ErrorCounter) Get(channelID string) int {
	return c.file.snapshot()[channelID]
}

// Peek is Get without repairing a missing or malformed file
func (c *ErrorCounter) Peek(channelID string) int {
	return c.file.peek()[channelID]
}

// Increment adds one failure and returns the new count
func (c *ErrorCounter) Increment(channelID string) (int, error) {
	var n int
	err := c.file.update(func(data map[string]int) bool {
		data[channelID]++
		n = data[channelID]
		return true
	})
	return n, err
}

// Reset sets the count of channelID back to zero
func (c *ErrorCounter) Reset(channelID string) error {
	return c.file.update(func(data map[string]int) bool {
		if data[channelID] == 0 {
			return false
		}
		delete(data, channelID)
		return true
	})
}
