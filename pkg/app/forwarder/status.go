package forwarder

import (
	"net/http"

	apphttp "github.com/smaghili/eitaa-forwarder/pkg/app/http"
	"github.com/smaghili/eitaa-forwarder/pkg/config"
	"github.com/smaghili/eitaa-forwarder/pkg/eitaa"
)

type channelStatus struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Status        string `json:"status"`
	LastMessageID string `json:"last_message_id,omitempty"`
	ErrorCount    int    `json:"error_count"`
}

type statusResponse struct {
	Session  string          `json:"session"`
	Ready    bool            `json:"ready"`
	Pending  int             `json:"pending"`
	Channels []channelStatus `json:"channels"`
}

// statusSource is the read side of the running components
type statusSource struct {
	channels   func() []config.ChannelConfig
	watermarks interface {
		Peek(channelID string) (string, bool)
	}
	errors interface {
		Peek(channelID string) int
	}
	session func() eitaa.SessionState
	ready   func() bool
	pending func() int
}

func (s statusSource) handle(w http.ResponseWriter, _ *http.Request) error {
	resp := statusResponse{
		Session: s.session().String(),
		Ready:   s.ready(),
		Pending: s.pending(),
	}
	for _, ch := range s.channels() {
		last, _ := s.watermarks.Peek(ch.ID)
		resp.Channels = append(resp.Channels, channelStatus{
			ID:            ch.ID,
			Name:          ch.Name,
			Status:        string(ch.Status),
			LastMessageID: last,
			ErrorCount:    s.errors.Peek(ch.ID),
		})
	}
	return apphttp.WriteJSON(w, http.StatusOK, resp)
}
