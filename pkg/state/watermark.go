package state

import (
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// WatermarkStore keeps the last processed message id of every channel
type WatermarkStore struct {
	file *mapFile[messageID]
}

// NewWatermarkStore creates a store backed by the JSON file at path
func NewWatermarkStore(path string, logger *zap.Logger) *WatermarkStore {
	return &WatermarkStore{
		file: &mapFile[messageID]{path: path, logger: logger.Named("watermarks")},
	}
}

// Init makes sure the backing file exists and holds a valid mapping
func (s *WatermarkStore) Init() {
	_ = s.file.snapshot()
}

// Load returns the watermark of channelID. ok is false when the channel has
// never been processed.
func (s *WatermarkStore) Load(channelID string) (string, bool) {
	v, ok := s.file.snapshot()[channelID]
	if !ok || v == "" {
		return "", false
	}
	return string(v), true
}

// Peek is Load without repairing a missing or malformed file
func (s *WatermarkStore) Peek(channelID string) (string, bool) {
	v, ok := s.file.peek()[channelID]
	if !ok || v == "" {
		return "", false
	}
	return string(v), true
}

// Save stores id as the watermark of channelID
func (s *WatermarkStore) Save(channelID, id string) error {
	return s.file.update(func(data map[string]messageID) bool {
		if data[channelID] == messageID(id) {
			return false
		}
		data[channelID] = messageID(id)
		return true
	})
}

// All returns a copy of the whole mapping
func (s *WatermarkStore) All() map[string]string {
	data := s.file.snapshot()
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = string(v)
	}
	return out
}

// messageID decodes both "123" and 123 so hand-edited files keep working
type messageID string

func (m *messageID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = messageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("message id must be a string or integer: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("message id must be an integer: %w", err)
	}
	*m = messageID(n.String())
	return nil
}
