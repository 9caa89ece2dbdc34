package relation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertTask(t *testing.T, db *sqlite.DB, id string, createdAt time.Time) {
	t.Helper()
	task := &domain.Task{
		ID:          id,
		Title:       "task " + id,
		Type:        domain.TypeConcrete,
		Instruction: "x",
		Status:      domain.StatusAvailable,
		CreatedBy:   "planner",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	err := db.InTx(context.Background(), func(tx domain.Tx) error {
		return tx.InsertTask(task)
	})
	if err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func link(t *testing.T, m *Manager, parent, child string, typ domain.RelationshipType) {
	t.Helper()
	if _, err := m.Link(context.Background(), parent, child, typ); err != nil {
		t.Fatalf("link %s->%s: %v", parent, child, err)
	}
}

func TestLink(t *testing.T) {
	db := newTestDB(t)
	m := New(db, nil, 0)
	now := time.Unix(1700000000, 0).UTC()
	insertTask(t, db, "p", now)
	insertTask(t, db, "c", now)

	rel, err := m.Link(context.Background(), "p", "c", domain.RelSubtask)
	if err != nil {
		t.Fatal(err)
	}
	if rel.ParentTaskID != "p" || rel.ChildTaskID != "c" {
		t.Errorf("rel = %+v", rel)
	}
}

func TestLink_Invalid(t *testing.T) {
	db := newTestDB(t)
	m := New(db, nil, 0)
	now := time.Unix(1700000000, 0).UTC()
	insertTask(t, db, "p", now)
	ctx := context.Background()

	if _, err := m.Link(ctx, "p", "c", "bogus"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad type err = %v", err)
	}
	if _, err := m.Link(ctx, "p", "p", domain.RelRelated); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("self link err = %v", err)
	}
	if _, err := m.Link(ctx, "p", "missing", domain.RelSubtask); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("missing child err = %v", err)
	}
}

func TestAncestry(t *testing.T) {
	db := newTestDB(t)
	m := New(db, nil, 0)
	now := time.Unix(1700000000, 0).UTC()
	for _, id := range []string{"epic", "mid", "leaf"} {
		insertTask(t, db, id, now)
	}
	link(t, m, "epic", "mid", domain.RelSubtask)
	link(t, m, "mid", "leaf", domain.RelFollowup)

	chain, err := m.Ancestry(context.Background(), "leaf")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 2 || chain[0].ID != "mid" || chain[1].ID != "epic" {
		t.Fatalf("chain = %+v", chain)
	}
}

func TestAncestry_EarliestParentWins(t *testing.T) {
	db := newTestDB(t)
	m := New(db, nil, 0)
	now := time.Unix(1700000000, 0).UTC()
	for _, id := range []string{"first", "second", "child"} {
		insertTask(t, db, id, now)
	}

	// Two hierarchical parents; traversal follows the earliest-created edge.
	ctx := context.Background()
	err := db.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.InsertRelationship(&domain.Relationship{
			ParentTaskID: "first", ChildTaskID: "child",
			Type: domain.RelSubtask, CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.InsertRelationship(&domain.Relationship{
			ParentTaskID: "second", ChildTaskID: "child",
			Type: domain.RelSubtask, CreatedAt: now.Add(time.Minute),
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	chain, err := m.Ancestry(ctx, "child")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 1 || chain[0].ID != "first" {
		t.Fatalf("chain = %+v", chain)
	}
}

func TestAncestry_Cycle(t *testing.T) {
	db := newTestDB(t)
	m := New(db, nil, 0)
	now := time.Unix(1700000000, 0).UTC()
	for _, id := range []string{"a", "b", "c"} {
		insertTask(t, db, id, now)
	}
	link(t, m, "a", "b", domain.RelSubtask)
	link(t, m, "b", "c", domain.RelSubtask)
	link(t, m, "c", "a", domain.RelSubtask)

	chain, err := m.Ancestry(context.Background(), "a")
	if !errors.Is(err, domain.ErrCycleDetected) {
		t.Fatalf("err = %v, want ErrCycleDetected", err)
	}
	// The chain built before the cycle closed is still returned.
	if len(chain) != 2 || chain[0].ID != "c" || chain[1].ID != "b" {
		t.Errorf("chain = %+v", chain)
	}
}

func TestAncestry_DepthBound(t *testing.T) {
	db := newTestDB(t)
	m := New(db, nil, 2)
	now := time.Unix(1700000000, 0).UTC()
	for _, id := range []string{"a", "b", "c", "d"} {
		insertTask(t, db, id, now)
	}
	link(t, m, "a", "b", domain.RelSubtask)
	link(t, m, "b", "c", domain.RelSubtask)
	link(t, m, "c", "d", domain.RelSubtask)

	chain, err := m.Ancestry(context.Background(), "d")
	if !errors.Is(err, domain.ErrCycleDetected) {
		t.Fatalf("err = %v, want ErrCycleDetected at depth bound", err)
	}
	if len(chain) != 2 {
		t.Errorf("chain = %+v", chain)
	}
}
