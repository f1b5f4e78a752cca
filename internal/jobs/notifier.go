package jobs

import (
	"sync"

	"github.com/google/uuid"
)

// Update is the terminal-state notification pushed to foreground consumers.
type Update struct {
	JobID  string `json:"job_id"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Notifier fans job updates out to every active subscriber. Delivery is best
// effort: a slow or absent consumer is skipped, the persisted record remains
// the source of truth for later polling.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]chan Update
}

// NewNotifier creates an empty subscriber registry.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]chan Update)}
}

// Subscribe registers a consumer and returns its id and update channel.
func (n *Notifier) Subscribe() (string, <-chan Update) {
	id := uuid.NewString()
	ch := make(chan Update, 16)
	n.mu.Lock()
	n.subs[id] = ch
	n.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	if ch, ok := n.subs[id]; ok {
		delete(n.subs, id)
		close(ch)
	}
	n.mu.Unlock()
}

// Publish sends the update to every subscriber without blocking.
func (n *Notifier) Publish(update Update) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- update:
		default:
		}
	}
}
