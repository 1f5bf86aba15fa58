package eitaa

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseLines(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  StructuredMessage
	}{
		{
			name:  "empty",
			lines: nil,
			want:  StructuredMessage{},
		},
		{
			name: "body views sender and time",
			lines: []string{
				"Breaking news",
				"second line",
				"1520",
				"News Desk,",
				"10:32 قبل‌ازظهر",
			},
			want: StructuredMessage{
				Sender: "News Desk",
				Time:   "10:32 قبل‌ازظهر",
				Views:  "1520",
				Body:   "Breaking news\nsecond line",
			},
		},
		{
			name: "blank lines dropped and only first numeric line is views",
			lines: []string{
				"",
				"Score",
				"3",
				"   ",
				"4",
				"Sports",
				"9:05 بعدازظهر",
			},
			want: StructuredMessage{
				Sender: "Sports",
				Time:   "9:05 بعدازظهر",
				Views:  "3",
				Body:   "Score\n4",
			},
		},
		{
			name:  "persian digits count as views",
			lines: []string{"سلام", "۱۲۳", "کانال", "8:00 بعدازظهر"},
			want: StructuredMessage{
				Sender: "کانال",
				Time:   "8:00 بعدازظهر",
				Views:  "۱۲۳",
				Body:   "سلام",
			},
		},
		{
			name:  "no time marker",
			lines: []string{"hello", "world"},
			want: StructuredMessage{
				Sender: "world",
				Body:   "hello",
			},
		},
		{
			name:  "trailing comma lines are not body",
			lines: []string{"keep", "drop me,", "Author", "1:00 بعدازظهر"},
			want: StructuredMessage{
				Sender: "Author",
				Time:   "1:00 بعدازظهر",
				Body:   "keep",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLines(tt.lines)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseLines() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMessage_Format(t *testing.T) {
	m := NewMessage(7, StructuredMessage{
		Sender: "Desk",
		Time:   "10:00 قبل‌ازظهر",
		Body:   "hello\nworld",
	}, "")

	want := "Message from Eitaa:\n\nSender: Desk\nTime: 10:00 قبل‌ازظهر\nText:\nhello\nworld"
	if got := m.Format(); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}

	m.Views = "42"
	if got := m.Format(); got != want+"\nViews: 42" {
		t.Errorf("Format() with views = %q", got)
	}
}
