package bulk

import (
	"context"
	"testing"
	"time"

	"github.com/loomworks/loom/internal/app/lifecycle"
	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/infra/sqlite"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestCoordinator(t *testing.T) (*Coordinator, *lifecycle.Engine) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	engine := lifecycle.New(db, fixedClock{t: time.Unix(1700000000, 0).UTC()})
	return New(engine), engine
}

func TestUnlock_PerItem(t *testing.T) {
	c, engine := newTestCoordinator(t)
	ctx := context.Background()

	mine, err := engine.Create(ctx, domain.TaskSpec{
		Title: "mine", Type: domain.TypeConcrete, Instruction: "x", VerificationInstruction: "v", AgentID: "planner",
	})
	if err != nil {
		t.Fatal(err)
	}
	theirs, err := engine.Create(ctx, domain.TaskSpec{
		Title: "theirs", Type: domain.TypeConcrete, Instruction: "x", VerificationInstruction: "v", AgentID: "planner",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Reserve(ctx, mine.ID, "worker-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Reserve(ctx, theirs.ID, "worker-2"); err != nil {
		t.Fatal(err)
	}

	results := c.Unlock(ctx, []UnlockItem{
		{TaskID: mine.ID, AgentID: "worker-1"},
		{TaskID: theirs.ID, AgentID: "worker-1"}, // wrong owner
		{TaskID: "missing", AgentID: "worker-1"},
	})
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	if !results[0].OK {
		t.Errorf("own task failed: %s", results[0].Error)
	}
	if results[1].OK || results[1].Error == "" {
		t.Errorf("foreign task: %+v", results[1])
	}
	if results[2].OK {
		t.Errorf("missing task: %+v", results[2])
	}

	// The failed item must not have released the other agent's claim.
	tc, err := engine.Context(ctx, theirs.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tc.Task.AssignedAgent != "worker-2" {
		t.Errorf("agent = %s", tc.Task.AssignedAgent)
	}
}

func TestCreate_Batch(t *testing.T) {
	c, _ := newTestCoordinator(t)
	tasks, err := c.Create(context.Background(), []domain.TaskSpec{
		{Title: "one", Type: domain.TypeConcrete, Instruction: "x", VerificationInstruction: "v", AgentID: "planner"},
		{Title: "two", Type: domain.TypeConcrete, Instruction: "x", VerificationInstruction: "v", AgentID: "planner"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len = %d", len(tasks))
	}
}
