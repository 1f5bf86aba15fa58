package prompt

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsk_RepeatsUntilValid(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("12\n+989121234567\n"), &out)

	answer, err := p.Ask(context.Background(), "Phone: ", func(s string) error {
		if !strings.HasPrefix(s, "+") {
			return errors.New("Include country code")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "+989121234567", answer)
	assert.Equal(t, 2, strings.Count(out.String(), "Phone: "))
	assert.Contains(t, out.String(), "Include country code")
}

func TestAsk_LastLineWithoutNewline(t *testing.T) {
	p := New(strings.NewReader("  12345 "), &bytes.Buffer{})

	answer, err := p.Ask(context.Background(), "Code: ", nil)
	require.NoError(t, err)
	assert.Equal(t, "12345", answer)
}

func TestAsk_ClosedInput(t *testing.T) {
	p := New(strings.NewReader(""), &bytes.Buffer{})

	_, err := p.Ask(context.Background(), "Code: ", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSecret_FallsBackToPlainLine(t *testing.T) {
	p := New(strings.NewReader("hunter2\n"), &bytes.Buffer{})

	answer, err := p.Secret(context.Background(), "Password: ")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", answer)
}

func TestAsk_Cancelled(t *testing.T) {
	r, _ := blockingReader()
	p := New(r, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Ask(ctx, "Code: ", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type blockReader struct{ ch chan struct{} }

func (b blockReader) Read([]byte) (int, error) {
	<-b.ch
	return 0, errors.New("closed")
}

func blockingReader() (blockReader, func()) {
	b := blockReader{ch: make(chan struct{})}
	return b, func() { close(b.ch) }
}
