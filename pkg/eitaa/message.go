// Package eitaa reads channel messages from the Eitaa web client.
//
// The package is driver agnostic: SessionManager and Reconciler talk to the
// browser only through the SessionDriver and Page interfaces, implemented
// by package browser.
package eitaa

import (
	"fmt"
	"strings"
	"unicode"
)

// Markers that identify the timestamp line of a rendered message
var timeMarkers = []string{"بعدازظهر", "قبل‌ازظهر"}

// StructuredMessage holds the fields recovered from a rendered message body
type StructuredMessage struct {
	Sender string
	Time   string
	Views  string
	Body   string
}

// Message is one source message ready to be formatted for delivery
type Message struct {
	ID             int64
	Sender         string
	Time           string
	Views          string
	Body           string
	AttachmentPath string
}

// ParseLines splits the rendered lines of a message into its fields.
//
// The last line carrying an AM/PM marker is the timestamp and the last line
// without one is the sender. The first remaining purely numeric line is the
// view counter. Every other line not ending with a comma is body text.
// The split is best effort and may misclassify unusual layouts.
func ParseLines(raw []string) StructuredMessage {
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}

	var out StructuredMessage
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		switch {
		case out.Time == "" && hasTimeMarker(line):
			out.Time = line
		case out.Sender == "" && !hasTimeMarker(line):
			out.Sender = strings.TrimSpace(strings.TrimRight(line, ","))
		}
	}

	body := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == out.Sender || line == out.Time {
			continue
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case out.Views == "" && isNumeric(trimmed):
			out.Views = trimmed
		case !strings.HasSuffix(trimmed, ","):
			body = append(body, line)
		}
	}
	out.Body = strings.Join(body, "\n")
	return out
}

// NewMessage builds a Message from a parsed body
func NewMessage(id int64, s StructuredMessage, attachmentPath string) Message {
	return Message{
		ID:             id,
		Sender:         s.Sender,
		Time:           s.Time,
		Views:          s.Views,
		Body:           s.Body,
		AttachmentPath: attachmentPath,
	}
}

// Format renders m as the text delivered to destinations
func (m Message) Format() string {
	var b strings.Builder
	b.WriteString("Message from Eitaa:\n\n")
	fmt.Fprintf(&b, "Sender: %s\n", m.Sender)
	fmt.Fprintf(&b, "Time: %s\n", m.Time)
	fmt.Fprintf(&b, "Text:\n%s", m.Body)
	if m.Views != "" {
		fmt.Fprintf(&b, "\nViews: %s", m.Views)
	}
	return b.String()
}

func hasTimeMarker(line string) bool {
	for _, m := range timeMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

// isNumeric accepts any Unicode decimal digits, so Persian counters match too
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
