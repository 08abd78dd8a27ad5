package postback

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Status is the delivery lifecycle state of a queue item.
//
//	pending -> processing -> completed            (terminal)
//	pending -> processing -> pending (retry loop)
//	pending -> processing -> failed               (terminal, retries exhausted)
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Item is one queued postback job and its delivery bookkeeping.
type Item struct {
	ID            string            `json:"id"`
	URL           string            `json:"postbackUrl"`
	Method        string            `json:"method"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Status        Status            `json:"status"`
	Retries       int               `json:"retries"`
	LastError     string            `json:"lastError,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	NextAttemptAt time.Time         `json:"-"`
}

// Store persists queue items. Implementations must make TakePending an
// atomic claim: returned items are marked processing before any other
// caller can observe them as pending.
type Store interface {
	Create(context.Context, Item) error
	Get(context.Context, string) (Item, error)
	// List returns all items ordered by creation time descending.
	List(context.Context) ([]Item, error)
	Update(context.Context, Item) error
	// TakePending claims up to limit items that are pending and whose next
	// attempt is due at or before now, marking each processing.
	TakePending(ctx context.Context, limit int, now time.Time) ([]Item, error)
	// DeleteTerminalBefore removes completed and failed items created
	// before cutoff, returning the number removed. Pending and processing
	// items are never touched.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
