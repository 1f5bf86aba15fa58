// Package prompt reads operator input from the terminal during interactive
// logins.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrClosed is returned when the input stream ends before an answer is read
var ErrClosed = errors.New("prompt input closed")

// Prompter asks questions on out and reads answers from in. All reads run
// on one goroutine so a cancelled question never leaves two readers racing
// on the same stream.
type Prompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
	// fd is the terminal file descriptor used for hidden input, -1 if none
	fd int

	once sync.Once
	reqs chan readRequest
}

type readRequest struct {
	secret bool
	reply  chan readResult
}

type readResult struct {
	line string
	err  error
}

// New creates a prompter over arbitrary streams. Secrets are read as plain
// lines.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:   bufio.NewReader(in),
		out:  out,
		fd:   -1,
		reqs: make(chan readRequest),
	}
}

// Terminal creates a prompter bound to the process stdin and stdout
func Terminal() *Prompter {
	p := New(os.Stdin, os.Stdout)
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		p.fd = fd
	}
	return p
}

// Ask prints label and reads one trimmed line. When validate is not nil the
// question is repeated until validate accepts the answer.
func (p *Prompter) Ask(ctx context.Context, label string, validate func(string) error) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		fmt.Fprint(p.out, label)
		answer, err := p.read(ctx, false)
		if err != nil {
			return "", err
		}
		if validate == nil {
			return answer, nil
		}
		if verr := validate(answer); verr != nil {
			fmt.Fprintln(p.out, verr.Error())
			continue
		}
		return answer, nil
	}
}

// Secret reads an answer without echoing it when stdin is a terminal
func (p *Prompter) Secret(ctx context.Context, label string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.out, label)
	answer, err := p.read(ctx, p.fd >= 0)
	if p.fd >= 0 {
		fmt.Fprintln(p.out)
	}
	return answer, err
}

// WaitEnter prints label and blocks until the operator presses Enter
func (p *Prompter) WaitEnter(ctx context.Context, label string) error {
	_, err := p.Ask(ctx, label, nil)
	return err
}

func (p *Prompter) read(ctx context.Context, secret bool) (string, error) {
	p.once.Do(func() { go p.loop() })

	req := readRequest{secret: secret, reply: make(chan readResult, 1)}
	select {
	case p.reqs <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-req.reply:
		return r.line, r.err
	}
}

func (p *Prompter) loop() {
	for req := range p.reqs {
		if req.secret {
			b, err := term.ReadPassword(p.fd)
			if err != nil {
				req.reply <- readResult{err: fmt.Errorf("read secret: %w", err)}
				continue
			}
			req.reply <- readResult{line: strings.TrimSpace(string(b))}
			continue
		}

		line, err := p.in.ReadString('\n')
		line = strings.TrimSpace(line)
		switch {
		case err == nil:
			req.reply <- readResult{line: line}
		case errors.Is(err, io.EOF) && line != "":
			req.reply <- readResult{line: line}
		case errors.Is(err, io.EOF):
			req.reply <- readResult{err: ErrClosed}
		default:
			req.reply <- readResult{err: fmt.Errorf("read answer: %w", err)}
		}
	}
}
