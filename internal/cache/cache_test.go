package cache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/models"
)

func testSQLite(t *testing.T) *SQLite {
	t.Helper()
	c := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	t.Cleanup(func() { c.Close() })
	return c
}

func testRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("TICKETDESK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TICKETDESK_TEST_REDIS_ADDR not set")
	}
	c := OpenRedis(addr, "", 0, "ticketdesk-test-"+t.Name())
	t.Cleanup(func() {
		_ = c.rdb.Del(context.Background(),
			c.key("version"), c.key("tickets"), c.key("queue:seq"), c.key("queue:items"), c.key("queue:order")).Err()
		c.Close()
	})
	return c
}

func backends(t *testing.T) map[string]func(t *testing.T) Cache {
	return map[string]func(t *testing.T) Cache{
		"memory": func(*testing.T) Cache { return NewMemory() },
		"sqlite": func(t *testing.T) Cache { return testSQLite(t) },
		"redis":  func(t *testing.T) Cache { return testRedis(t) },
	}
}

func ticket(id, updated string) models.Ticket {
	return models.Ticket{
		ID:        id,
		Title:     "Ticket " + id,
		Status:    models.StatusOpen,
		Priority:  3,
		CreatedAt: "2024-01-01T00:00:00.000Z",
		UpdatedAt: updated,
		Tags:      []string{"bug"},
		Assignee:  models.Ptr("Alice Johnson"),
	}
}

func TestMirror(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := open(t)

			got, err := c.ReadAll(ctx)
			if err != nil {
				t.Fatalf("ReadAll empty: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("fresh cache has %d tickets", len(got))
			}

			first := []models.Ticket{ticket("B", "2024-01-02T00:00:00.000Z"), ticket("A", "2024-01-03T00:00:00.000Z")}
			if err := c.ReplaceAll(ctx, first); err != nil {
				t.Fatalf("ReplaceAll: %v", err)
			}
			got, _ = c.ReadAll(ctx)
			want := []models.Ticket{first[1], first[0]}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("ReadAll mismatch (-want +got):\n%s", diff)
			}

			// ReplaceAll drops what is not in the new set.
			if err := c.ReplaceAll(ctx, []models.Ticket{ticket("C", "2024-02-01T00:00:00.000Z")}); err != nil {
				t.Fatalf("ReplaceAll: %v", err)
			}
			got, _ = c.ReadAll(ctx)
			if len(got) != 1 || got[0].ID != "C" {
				t.Fatalf("after replace got %+v", got)
			}

			updated := ticket("C", "2024-03-01T00:00:00.000Z")
			updated.Status = models.StatusClosed
			if err := c.UpsertOne(ctx, updated); err != nil {
				t.Fatalf("UpsertOne: %v", err)
			}
			if err := c.UpsertOne(ctx, ticket("D", "2024-03-01T00:00:00.000Z")); err != nil {
				t.Fatalf("UpsertOne new: %v", err)
			}
			got, _ = c.ReadAll(ctx)
			if len(got) != 2 {
				t.Fatalf("got %d tickets, want 2", len(got))
			}
			if got[0].Status != models.StatusClosed || got[0].UpdatedAt != "2024-03-01T00:00:00.000Z" {
				t.Errorf("upsert not applied: %+v", got[0])
			}
		})
	}
}

func TestQueue(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := open(t)

			changes := []models.PendingChange{
				{TicketID: "T2", Patch: models.Patch{Title: models.Ptr("late")}, OriginalUpdatedAt: "x", Timestamp: 300},
				{TicketID: "T1", Patch: models.Patch{Status: models.Ptr(models.StatusClosed)}, Timestamp: 100},
				{TicketID: "T3", Patch: models.Patch{Priority: models.Ptr(models.Priority(2))}, Timestamp: 100},
			}
			keys := make([]int64, len(changes))
			for i, ch := range changes {
				k, err := c.Append(ctx, ch)
				if err != nil {
					t.Fatalf("Append: %v", err)
				}
				keys[i] = k
			}
			if keys[0] == keys[1] || keys[1] == keys[2] {
				t.Fatalf("keys not unique: %v", keys)
			}

			n, err := c.Count(ctx)
			if err != nil || n != 3 {
				t.Fatalf("Count = %d, %v; want 3", n, err)
			}

			got, err := c.ReadAllOrdered(ctx)
			if err != nil {
				t.Fatalf("ReadAllOrdered: %v", err)
			}
			order := []string{got[0].TicketID, got[1].TicketID, got[2].TicketID}
			if diff := cmp.Diff([]string{"T1", "T3", "T2"}, order); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
			if got[0].Patch.Status == nil || *got[0].Patch.Status != models.StatusClosed {
				t.Errorf("patch not round-tripped: %+v", got[0].Patch)
			}
			if got[2].OriginalUpdatedAt != "x" || got[2].Key != keys[0] {
				t.Errorf("change fields lost: %+v", got[2])
			}

			if err := c.Remove(ctx, keys[1]); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if err := c.Remove(ctx, 9999); err != nil {
				t.Fatalf("Remove missing key: %v", err)
			}
			n, _ = c.Count(ctx)
			if n != 2 {
				t.Errorf("Count after remove = %d, want 2", n)
			}

			if err := c.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			n, _ = c.Count(ctx)
			if n != 0 {
				t.Errorf("Count after clear = %d, want 0", n)
			}
		})
	}
}

func TestClosed(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := open(t)
			if err := c.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if _, err := c.ReadAll(context.Background()); !errors.Is(err, apperr.ErrCacheClosed) {
				t.Errorf("ReadAll after close = %v, want ErrCacheClosed", err)
			}
		})
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c := OpenSQLite(path)
	if err := c.ReplaceAll(ctx, []models.Ticket{ticket("A", "2024-01-01T00:00:00.000Z")}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Append(ctx, models.PendingChange{TicketID: "A", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	c.Close()

	c = OpenSQLite(path)
	defer c.Close()
	got, err := c.ReadAll(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("ReadAll after reopen = %v, %v", got, err)
	}
	if n, _ := c.Count(ctx); n != 1 {
		t.Errorf("queue after reopen = %d, want 1", n)
	}
}

func TestSQLite_VersionMismatchResets(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c := OpenSQLite(path)
	if err := c.ReplaceAll(ctx, []models.Ticket{ticket("A", "2024-01-01T00:00:00.000Z")}); err != nil {
		t.Fatal(err)
	}
	c.Close()

	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(`PRAGMA user_version = 99`); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	c = OpenSQLite(path)
	defer c.Close()
	got, err := c.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stale schema kept %d tickets", len(got))
	}
}

func TestSQLite_LazyOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c := OpenSQLite(path)
	defer c.Close()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("database created before first use: %v", err)
	}
	if _, err := c.Count(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database not created on first use: %v", err)
	}
}
