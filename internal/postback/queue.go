package postback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"pushrelay/internal/ids"
)

const (
	userAgent         = "pushrelay/1.0"
	maxErrorBodyBytes = 4 << 10
)

// Job is the caller-facing shape of a postback to enqueue.
type Job struct {
	URL     string
	Method  string
	Payload json.RawMessage
	Headers map[string]string
}

type Options struct {
	// MaxRetries bounds attempts beyond the first. Default 3.
	MaxRetries int
	// RetryBackoff is the delay unit between attempts: retry n waits
	// n times this value. Default 10s.
	RetryBackoff time.Duration
	// AttemptTimeout bounds one HTTP call. Default 30s.
	AttemptTimeout time.Duration
	// BatchSize caps the eligible items claimed per scheduling pass.
	// Default 10.
	BatchSize int
	// RetentionAge is how long terminal items are kept before the cleanup
	// sweep removes them. Default 1h.
	RetentionAge time.Duration
	// CleanupInterval is how often the cleanup sweep runs. Default 1h.
	CleanupInterval time.Duration
	// SweepInterval is how often the scheduler re-checks for due items it
	// has no timer for, such as retries persisted before a restart.
	// Default 30s.
	SweepInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 10 * time.Second
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 30 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.RetentionAge <= 0 {
		o.RetentionAge = time.Hour
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
}

// Queue accepts postback jobs and drives their delivery with bounded-
// concurrency scheduling passes and linear backoff between retries.
// A scheduling pass claims up to BatchSize eligible items, executes them
// concurrently, and immediately runs another pass when a full batch ran.
type Queue struct {
	logger *log.Logger
	store  Store
	client *http.Client
	opts   Options

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(logger *log.Logger, store Store, opts Options) *Queue {
	opts.applyDefaults()
	q := &Queue{
		logger: logger,
		store:  store,
		client: &http.Client{},
		opts:   opts,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	// Pick up anything already pending in a persistent store.
	q.kick()
	return q
}

// Enqueue stores a new pending item and wakes the scheduler. It returns as
// soon as the item is stored; delivery happens asynchronously.
func (q *Queue) Enqueue(ctx context.Context, job Job) (Item, error) {
	method := strings.ToUpper(strings.TrimSpace(job.Method))
	if method == "" {
		method = http.MethodPost
	}

	now := time.Now().UTC()
	item := Item{
		ID:            ids.New("pb"),
		URL:           strings.TrimSpace(job.URL),
		Method:        method,
		Payload:       job.Payload,
		Headers:       job.Headers,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		NextAttemptAt: now,
	}
	if err := q.store.Create(ctx, item); err != nil {
		return Item{}, fmt.Errorf("enqueue postback: %w", err)
	}
	q.kick()
	return item, nil
}

// Get returns the current state of one queue item.
func (q *Queue) Get(ctx context.Context, id string) (Item, error) {
	return q.store.Get(ctx, id)
}

// List returns all queue items, newest first.
func (q *Queue) List(ctx context.Context) ([]Item, error) {
	return q.store.List(ctx)
}

// Cleanup removes terminal items older than maxAge.
func (q *Queue) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	return q.store.DeleteTerminalBefore(ctx, time.Now().UTC().Add(-maxAge))
}

// Stop shuts the scheduler down after the in-flight pass settles. Items left
// pending or processing are picked up again on the next start when the store
// is persistent.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.done) })
	q.wg.Wait()
}

func (q *Queue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer q.wg.Done()

	sweep := time.NewTicker(q.opts.SweepInterval)
	defer sweep.Stop()
	cleanup := time.NewTicker(q.opts.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
			q.pass()
		case <-sweep.C:
			q.pass()
		case <-cleanup.C:
			removed, err := q.Cleanup(context.Background(), q.opts.RetentionAge)
			if err != nil {
				q.logger.Printf("postback cleanup failed err=%v", err)
				continue
			}
			if removed > 0 {
				q.logger.Printf("postback cleanup removed=%d", removed)
			}
		}
	}
}

func (q *Queue) pass() {
	for {
		items, err := q.store.TakePending(context.Background(), q.opts.BatchSize, time.Now().UTC())
		if err != nil {
			q.logger.Printf("postback claim failed err=%v", err)
			return
		}
		if len(items) == 0 {
			return
		}

		var wg sync.WaitGroup
		for _, item := range items {
			item := item
			wg.Add(1)
			go func() {
				defer wg.Done()
				q.deliver(item)
			}()
		}
		wg.Wait()

		if len(items) < q.opts.BatchSize {
			return
		}
		// A full batch ran; more items may be eligible.
	}
}

func (q *Queue) deliver(item Item) {
	attemptErr := q.attempt(item)
	now := time.Now().UTC()
	item.UpdatedAt = now

	if attemptErr == nil {
		item.Status = StatusCompleted
		item.LastError = ""
		if err := q.store.Update(context.Background(), item); err != nil {
			q.logger.Printf("postback update failed id=%s err=%v", item.ID, err)
		}
		return
	}

	item.LastError = attemptErr.Error()
	if item.Retries < q.opts.MaxRetries {
		item.Retries++
		delay := time.Duration(item.Retries) * q.opts.RetryBackoff
		item.Status = StatusPending
		item.NextAttemptAt = now.Add(delay)
		if err := q.store.Update(context.Background(), item); err != nil {
			q.logger.Printf("postback update failed id=%s err=%v", item.ID, err)
			return
		}
		q.logger.Printf("postback retry scheduled id=%s retries=%d delay=%s err=%v",
			item.ID, item.Retries, delay, attemptErr)
		time.AfterFunc(delay, q.kick)
		return
	}

	item.Status = StatusFailed
	if err := q.store.Update(context.Background(), item); err != nil {
		q.logger.Printf("postback update failed id=%s err=%v", item.ID, err)
		return
	}
	q.logger.Printf("postback failed permanently id=%s retries=%d err=%v",
		item.ID, item.Retries, attemptErr)
}

func (q *Queue) attempt(item Item) error {
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.AttemptTimeout)
	defer cancel()

	var body io.Reader
	if item.Method != http.MethodGet && len(item.Payload) > 0 {
		body = bytes.NewReader(item.Payload)
	}
	req, err := http.NewRequestWithContext(ctx, item.Method, item.URL, body)
	if err != nil {
		return fmt.Errorf("build postback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for key, value := range item.Headers {
		req.Header.Set(key, value)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("post postback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	limited, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return fmt.Errorf("postback status=%d read body: %w", resp.StatusCode, err)
	}
	return fmt.Errorf("postback status=%d body=%q", resp.StatusCode, limited)
}
