package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Terminal asks y/N questions on a line-oriented reader, one prompt at a time.
type Terminal struct {
	out io.Writer

	mu    sync.Mutex
	lines chan string
}

var _ Port = (*Terminal)(nil)

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{out: out, lines: make(chan string)}
	go t.scan(in)
	return t
}

func (t *Terminal) scan(in io.Reader) {
	defer close(t.lines)
	s := bufio.NewScanner(in)
	for s.Scan() {
		t.lines <- s.Text()
	}
}

func (t *Terminal) Confirm(ctx context.Context, p Prompt) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "\n[%s] %s\nApprove? [y/N]: ", p.Kind, p.Summary)

	select {
	case line, ok := <-t.lines:
		if !ok {
			return false, io.EOF
		}
		s := strings.TrimSpace(strings.ToLower(line))
		return s == "y" || s == "yes", nil
	case <-ctx.Done():
		fmt.Fprintln(t.out)
		return false, ctx.Err()
	}
}
