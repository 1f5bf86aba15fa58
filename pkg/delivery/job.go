// Package delivery moves outbound jobs from the polling loop to the
// destination platform.
//
// The polling goroutine enqueues jobs; a single Worker goroutine owns the
// destination connection and drains the Queue at its own pace.
package delivery

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes forwarded content from operator notifications
type Kind string

const (
	KindMessage Kind = "message"
	KindAdmin   Kind = "admin"
)

// Job is one message to deliver to one or more destinations
type Job struct {
	ID             string
	Kind           Kind
	ChannelID      string
	MessageID      int64
	Text           string
	AttachmentPath string
	Targets        []int64
	CreatedAt      time.Time
}

// NewMessageJob creates a job for a forwarded source message
func NewMessageJob(channelID string, messageID int64, text, attachmentPath string, targets []int64) *Job {
	return &Job{
		ID:             uuid.NewString(),
		Kind:           KindMessage,
		ChannelID:      channelID,
		MessageID:      messageID,
		Text:           text,
		AttachmentPath: attachmentPath,
		Targets:        append([]int64(nil), targets...),
		CreatedAt:      time.Now(),
	}
}

// NewAdminJob creates an operator notification
func NewAdminJob(text string, targets []int64) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Kind:      KindAdmin,
		Text:      text,
		Targets:   append([]int64(nil), targets...),
		CreatedAt: time.Now(),
	}
}
