package confirm

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

var ErrUnknownPrompt = errors.New("unknown or expired approval")

// Pending is a prompt waiting for the operator.
type Pending struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Prompt
}

type entry struct {
	Pending
	decision chan bool
}

// Queue parks prompts until Decide is called for them, typically from the
// operator API. Prompts not decided within timeout are rejected.
type Queue struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*entry
}

var _ Port = (*Queue)(nil)

// NewQueue returns a queue. A zero timeout waits until ctx is done.
func NewQueue(timeout time.Duration) *Queue {
	return &Queue{timeout: timeout, pending: make(map[string]*entry)}
}

func (q *Queue) Confirm(ctx context.Context, p Prompt) (bool, error) {
	e := &entry{
		Pending:  Pending{ID: uuid.NewString(), CreatedAt: time.Now().UTC(), Prompt: p},
		decision: make(chan bool, 1),
	}
	q.mu.Lock()
	q.pending[e.ID] = e
	q.mu.Unlock()
	defer q.remove(e.ID)

	log.Info("awaiting operator approval", "id", e.ID, "kind", p.Kind, "method", p.Method, "chainId", p.ChainID)

	var expired <-chan time.Time
	if q.timeout > 0 {
		t := time.NewTimer(q.timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case ok := <-e.decision:
		return ok, nil
	case <-expired:
		log.Warn("operator approval timed out", "id", e.ID, "after", q.timeout)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// List returns the waiting prompts, oldest first.
func (q *Queue) List() []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Pending, 0, len(q.pending))
	for _, e := range q.pending {
		out = append(out, e.Pending)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Decide resolves the prompt with id. Each prompt can be decided once.
func (q *Queue) Decide(id string, approve bool) error {
	q.mu.Lock()
	e, ok := q.pending[id]
	if ok {
		delete(q.pending, id)
	}
	q.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrUnknownPrompt, "approval %s", id)
	}
	e.decision <- approve
	return nil
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}
