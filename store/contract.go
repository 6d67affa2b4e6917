package store

import (
	"context"
	"testing"

	"github.com/r3e-network/objectstore/entity"
)

// RunRepositoryContract exercises the Repository interface's invariants
// against a fresh Repository returned by newRepo for each top-level test —
// grounded on the teacher's former pkg/storage/memory_contract.go idiom of
// running one assertion suite against multiple backends. store/memory's
// TestStore_RepositoryContract runs it; store/postgres's tests do not.
func RunRepositoryContract(t *testing.T, newRepo func() Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("write then read round-trips data and assigns version 1", func(t *testing.T) {
		repo := newRepo()
		owner := Principal("alice")
		ev, err := repo.Write(ctx, WriteRequest{TypeName: "Widget", Owner: owner, Data: entity.Data{"n": 1.0}})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if ev.Version != 1 {
			t.Fatalf("Version = %d, want 1", ev.Version)
		}
		got, ok, err := repo.Read(ctx, "Widget", ev.EntityID, owner)
		if err != nil || !ok {
			t.Fatalf("Read: ok=%v err=%v", ok, err)
		}
		if got.Data["n"] != 1.0 {
			t.Fatalf("Data[n] = %v, want 1", got.Data["n"])
		}
	})

	t.Run("read is invisible to a non-owner non-reader non-writer", func(t *testing.T) {
		repo := newRepo()
		owner := Principal("alice")
		stranger := Principal("mallory")
		ev, err := repo.Write(ctx, WriteRequest{TypeName: "Widget", Owner: owner, Data: entity.Data{}})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		_, ok, err := repo.Read(ctx, "Widget", ev.EntityID, stranger)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if ok {
			t.Fatal("expected Read to be invisible to a stranger")
		}
	})

	t.Run("shared reader can read but not update", func(t *testing.T) {
		repo := newRepo()
		owner := Principal("alice")
		reader := Principal("bob")
		ev, err := repo.Write(ctx, WriteRequest{TypeName: "Widget", Owner: owner, Data: entity.Data{}})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := repo.ShareRead(ctx, ev.EntityID, owner, reader); err != nil {
			t.Fatalf("ShareRead: %v", err)
		}
		if _, ok, err := repo.Read(ctx, "Widget", ev.EntityID, reader); err != nil || !ok {
			t.Fatalf("Read as reader: ok=%v err=%v", ok, err)
		}
		if _, err := repo.Update(ctx, UpdateRequest{EntityID: ev.EntityID, Caller: reader, Data: entity.Data{"x": 1.0}}); err == nil {
			t.Fatal("expected Update by a read-only reader to fail")
		}
	})

	t.Run("update with stale expected version conflicts", func(t *testing.T) {
		repo := newRepo()
		owner := Principal("alice")
		ev, err := repo.Write(ctx, WriteRequest{TypeName: "Widget", Owner: owner, Data: entity.Data{}})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		stale := int64(0)
		if _, err := repo.Update(ctx, UpdateRequest{EntityID: ev.EntityID, Caller: owner, Data: entity.Data{}, ExpectedVersion: &stale}); err == nil {
			t.Fatal("expected VersionConflict when expected version is stale")
		}
		current := int64(1)
		if _, err := repo.Update(ctx, UpdateRequest{EntityID: ev.EntityID, Caller: owner, Data: entity.Data{"n": 2.0}, ExpectedVersion: &current}); err != nil {
			t.Fatalf("Update with correct expected version: %v", err)
		}
	})

	t.Run("delete makes the entity invisible to Read but retains History", func(t *testing.T) {
		repo := newRepo()
		owner := Principal("alice")
		ev, err := repo.Write(ctx, WriteRequest{TypeName: "Widget", Owner: owner, Data: entity.Data{}})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if _, err := repo.Delete(ctx, ev.EntityID, owner, nil); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, ok, err := repo.Read(ctx, "Widget", ev.EntityID, owner); err != nil || ok {
			t.Fatalf("Read after delete: ok=%v err=%v, want ok=false", ok, err)
		}
		history, err := repo.History(ctx, "Widget", ev.EntityID, owner)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("len(History) = %d, want 2 (create + tombstone)", len(history))
		}
	})

	t.Run("query returns a full page with a continuation cursor", func(t *testing.T) {
		repo := newRepo()
		owner := Principal("alice")
		for i := 0; i < 3; i++ {
			if _, err := repo.Write(ctx, WriteRequest{TypeName: "Widget", Owner: owner, Data: entity.Data{}}); err != nil {
				t.Fatalf("Write: %v", err)
			}
		}
		page, err := repo.Query(ctx, owner, QueryOptions{TypeName: "Widget", Pagination: Pagination{Limit: 2}})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(page.Items) != 2 || page.NextCursor == "" {
			t.Fatalf("page = %+v, want 2 items with a continuation cursor", page)
		}
		next, err := repo.Query(ctx, owner, QueryOptions{TypeName: "Widget", Pagination: Pagination{Limit: 2, Cursor: page.NextCursor}})
		if err != nil {
			t.Fatalf("Query (page 2): %v", err)
		}
		if len(next.Items) != 1 || next.NextCursor != "" {
			t.Fatalf("page 2 = %+v, want 1 item and no further cursor", next)
		}
	})

	t.Run("write_many is all-or-nothing", func(t *testing.T) {
		repo := newRepo()
		owner := Principal("alice")
		reqs := []WriteRequest{
			{TypeName: "Widget", Owner: owner, Data: entity.Data{}},
			{TypeName: "Widget", Owner: owner, Data: entity.Data{}},
		}
		out, err := repo.WriteMany(ctx, reqs)
		if err != nil {
			t.Fatalf("WriteMany: %v", err)
		}
		if len(out) != 2 {
			t.Fatalf("len(out) = %d, want 2", len(out))
		}
	})
}
