package postback

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// runStoreContract exercises the Store behavior every implementation must
// share. Both the memory and gorm stores run it.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateGetRoundTrip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		item := testItem("pb_1_aaaaaaaa", StatusPending, time.Now().UTC())
		item.Payload = json.RawMessage(`{"order":17}`)
		item.Headers = map[string]string{"X-Signature": "abc"}
		if err := store.Create(ctx, item); err != nil {
			t.Fatalf("create: %v", err)
		}

		got, err := store.Get(ctx, item.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.URL != item.URL || got.Method != item.Method || got.Status != StatusPending {
			t.Fatalf("round trip mismatch: %+v", got)
		}
		if string(got.Payload) != `{"order":17}` {
			t.Fatalf("payload mismatch: %s", got.Payload)
		}
		if got.Headers["X-Signature"] != "abc" {
			t.Fatalf("headers mismatch: %v", got.Headers)
		}
	})

	t.Run("GetUnknownIsNotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "pb_0_missing0")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)

		for i, id := range []string{"pb_1_aaaaaaaa", "pb_2_bbbbbbbb", "pb_3_cccccccc"} {
			item := testItem(id, StatusPending, base.Add(time.Duration(i)*time.Minute))
			if err := store.Create(ctx, item); err != nil {
				t.Fatalf("create %s: %v", id, err)
			}
		}

		items, err := store.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(items) != 3 {
			t.Fatalf("expected 3 items, got %d", len(items))
		}
		for i, want := range []string{"pb_3_cccccccc", "pb_2_bbbbbbbb", "pb_1_aaaaaaaa"} {
			if items[i].ID != want {
				t.Fatalf("unexpected order at %d: got %s want %s", i, items[i].ID, want)
			}
		}
	})

	t.Run("TakePendingClaimsDueItems", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		due := testItem("pb_1_aaaaaaaa", StatusPending, now.Add(-time.Minute))
		future := testItem("pb_2_bbbbbbbb", StatusPending, now.Add(-time.Minute))
		future.NextAttemptAt = now.Add(time.Hour)
		done := testItem("pb_3_cccccccc", StatusCompleted, now.Add(-time.Minute))
		for _, item := range []Item{due, future, done} {
			if err := store.Create(ctx, item); err != nil {
				t.Fatalf("create %s: %v", item.ID, err)
			}
		}

		claimed, err := store.TakePending(ctx, 10, now)
		if err != nil {
			t.Fatalf("take pending: %v", err)
		}
		if len(claimed) != 1 || claimed[0].ID != due.ID {
			t.Fatalf("expected only the due item, got %v", claimed)
		}
		if claimed[0].Status != StatusProcessing {
			t.Fatalf("expected claimed item marked processing, got %s", claimed[0].Status)
		}

		// A second take must not re-claim it.
		again, err := store.TakePending(ctx, 10, now)
		if err != nil {
			t.Fatalf("take pending again: %v", err)
		}
		if len(again) != 0 {
			t.Fatalf("expected no re-claim, got %v", again)
		}
	})

	t.Run("TakePendingRespectsLimit", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		for _, id := range []string{"pb_1_aaaaaaaa", "pb_2_bbbbbbbb", "pb_3_cccccccc"} {
			if err := store.Create(ctx, testItem(id, StatusPending, now)); err != nil {
				t.Fatalf("create %s: %v", id, err)
			}
		}

		claimed, err := store.TakePending(ctx, 2, now)
		if err != nil {
			t.Fatalf("take pending: %v", err)
		}
		if len(claimed) != 2 {
			t.Fatalf("expected 2 claimed, got %d", len(claimed))
		}
	})

	t.Run("UpdatePersistsTransitions", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		item := testItem("pb_1_aaaaaaaa", StatusProcessing, time.Now().UTC())
		if err := store.Create(ctx, item); err != nil {
			t.Fatalf("create: %v", err)
		}

		item.Status = StatusPending
		item.Retries = 2
		item.LastError = "postback status=500"
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("update: %v", err)
		}

		got, err := store.Get(ctx, item.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != StatusPending || got.Retries != 2 || got.LastError == "" {
			t.Fatalf("transition not persisted: %+v", got)
		}
	})

	t.Run("DeleteTerminalBefore", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		oldCompleted := testItem("pb_1_aaaaaaaa", StatusCompleted, now.Add(-2*time.Hour))
		oldFailed := testItem("pb_2_bbbbbbbb", StatusFailed, now.Add(-2*time.Hour))
		oldPending := testItem("pb_3_cccccccc", StatusPending, now.Add(-2*time.Hour))
		oldProcessing := testItem("pb_4_dddddddd", StatusProcessing, now.Add(-2*time.Hour))
		freshCompleted := testItem("pb_5_eeeeeeee", StatusCompleted, now)
		for _, item := range []Item{oldCompleted, oldFailed, oldPending, oldProcessing, freshCompleted} {
			if err := store.Create(ctx, item); err != nil {
				t.Fatalf("create %s: %v", item.ID, err)
			}
		}

		removed, err := store.DeleteTerminalBefore(ctx, now.Add(-time.Hour))
		if err != nil {
			t.Fatalf("delete terminal: %v", err)
		}
		if removed != 2 {
			t.Fatalf("expected 2 removed, got %d", removed)
		}

		for _, id := range []string{oldPending.ID, oldProcessing.ID, freshCompleted.ID} {
			if _, err := store.Get(ctx, id); err != nil {
				t.Fatalf("expected %s retained: %v", id, err)
			}
		}
		for _, id := range []string{oldCompleted.ID, oldFailed.ID} {
			if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected %s removed, got %v", id, err)
			}
		}
	})
}

func testItem(id string, status Status, createdAt time.Time) Item {
	return Item{
		ID:            id,
		URL:           "https://callbacks.example.com/hook",
		Method:        "POST",
		Status:        status,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		NextAttemptAt: createdAt,
	}
}
