package lifecycle

import (
	"context"
	"errors"
	"sync"
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

// fakeClock is a settable clock for deterministic timeout tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return New(newTestDB(t), clock), clock
}

func createTask(t *testing.T, e *Engine) *domain.Task {
	t.Helper()
	task, err := e.Create(context.Background(), domain.TaskSpec{
		Title:                   "write parser",
		Type:                    domain.TypeConcrete,
		Instruction:             "implement the tokenizer",
		VerificationInstruction: "run the lexer suite",
		AgentID:                 "planner",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return task
}

func TestCreate(t *testing.T) {
	e, clock := newTestEngine(t)
	task := createTask(t, e)

	if task.ID == "" {
		t.Error("no id assigned")
	}
	if task.Status != domain.StatusAvailable {
		t.Errorf("status = %s", task.Status)
	}
	if task.Priority != domain.PriorityMedium {
		t.Errorf("priority = %s", task.Priority)
	}
	if !task.CreatedAt.Equal(clock.Now()) {
		t.Errorf("created_at = %s", task.CreatedAt)
	}

	// Creation is recorded in history.
	entries, err := e.History(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].NewValue != "available" {
		t.Errorf("history = %+v", entries)
	}
}

func TestCreate_Validation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []domain.TaskSpec{
		// no title
		{Type: domain.TypeConcrete, Instruction: "x", VerificationInstruction: "v", AgentID: "a"},
		// no verification instruction
		{Title: "t", Type: domain.TypeConcrete, Instruction: "x", AgentID: "a"},
		// bad type
		{Title: "t", Type: "bogus", Instruction: "x", VerificationInstruction: "v", AgentID: "a"},
		// no agent
		{Title: "t", Type: domain.TypeConcrete, Instruction: "x", VerificationInstruction: "v"},
		// relationship without parent
		{Title: "t", Type: domain.TypeConcrete, Instruction: "x", VerificationInstruction: "v",
			AgentID: "a", Relationship: domain.RelSubtask},
	}
	for i, spec := range cases {
		if _, err := e.Create(ctx, spec); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("case %d: err = %v, want ErrValidation", i, err)
		}
	}
}

func TestCreate_MissingParent(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Create(context.Background(), domain.TaskSpec{
		Title:                   "child",
		Type:                    domain.TypeConcrete,
		Instruction:             "x",
		VerificationInstruction: "v",
		AgentID:                 "a",
		ParentTaskID:            "missing",
		Relationship:            domain.RelSubtask,
	})
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestReserve(t *testing.T) {
	e, clock := newTestEngine(t)
	task := createTask(t, e)

	tc, err := e.Reserve(context.Background(), task.ID, "worker-1")
	if err != nil {
		t.Fatal(err)
	}
	if tc.Task.Status != domain.StatusInProgress {
		t.Errorf("status = %s", tc.Task.Status)
	}
	if tc.Task.AssignedAgent != "worker-1" {
		t.Errorf("agent = %s", tc.Task.AssignedAgent)
	}
	if tc.Task.ReservedAt == nil || !tc.Task.ReservedAt.Equal(clock.Now()) {
		t.Errorf("reserved_at = %v", tc.Task.ReservedAt)
	}
	if tc.StaleWarning != nil {
		t.Error("fresh task should carry no stale warning")
	}
}

func TestReserve_AlreadyReserved(t *testing.T) {
	e, _ := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	if _, err := e.Reserve(ctx, task.ID, "worker-1"); err != nil {
		t.Fatal(err)
	}
	_, err := e.Reserve(ctx, task.ID, "worker-2")
	if !errors.Is(err, domain.ErrAlreadyReserved) {
		t.Fatalf("err = %v, want ErrAlreadyReserved", err)
	}

	// The loser must not have displaced the owner.
	tc, err := e.Context(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tc.Task.AssignedAgent != "worker-1" {
		t.Errorf("agent = %s", tc.Task.AssignedAgent)
	}
}

func TestReserve_Race(t *testing.T) {
	e, _ := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agent := string(rune('a' + i))
			_, errs[i] = e.Reserve(ctx, task.ID, agent)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAlreadyReserved):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestComplete(t *testing.T) {
	e, clock := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	if _, err := e.Reserve(ctx, task.ID, "worker-1"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Minute)

	done, followup, err := e.Complete(ctx, task.ID, "worker-1", "all tests green", nil)
	if err != nil {
		t.Fatal(err)
	}
	if followup != nil {
		t.Error("no followup requested")
	}
	if done.Status != domain.StatusCompleted {
		t.Errorf("status = %s", done.Status)
	}
	// Ownership is cleared on completion; attribution survives separately.
	if done.AssignedAgent != "" {
		t.Errorf("agent = %q, want cleared", done.AssignedAgent)
	}
	if done.CompletedBy != "worker-1" {
		t.Errorf("completed_by = %q", done.CompletedBy)
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(clock.Now()) {
		t.Errorf("completed_at = %v", done.CompletedAt)
	}
	if done.Notes != "all tests green" {
		t.Errorf("notes = %q", done.Notes)
	}
}

func TestComplete_NotOwner(t *testing.T) {
	e, _ := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	if _, err := e.Reserve(ctx, task.ID, "worker-1"); err != nil {
		t.Fatal(err)
	}
	_, _, err := e.Complete(ctx, task.ID, "impostor", "", nil)
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
}

func TestComplete_NotInProgress(t *testing.T) {
	e, _ := newTestEngine(t)
	task := createTask(t, e)

	_, _, err := e.Complete(context.Background(), task.ID, "worker-1", "", nil)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestComplete_WithFollowup(t *testing.T) {
	e, _ := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	if _, err := e.Reserve(ctx, task.ID, "worker-1"); err != nil {
		t.Fatal(err)
	}
	done, followup, err := e.Complete(ctx, task.ID, "worker-1", "", &FollowupSpec{
		Title:                   "verify parser against corpus",
		Type:                    domain.TypeConcrete,
		Instruction:             "run the corpus suite",
		VerificationInstruction: "all corpus files parse",
	})
	if err != nil {
		t.Fatal(err)
	}
	if followup == nil {
		t.Fatal("no followup created")
	}
	if followup.ParentTaskID != done.ID {
		t.Errorf("parent = %s", followup.ParentTaskID)
	}
	if followup.Status != domain.StatusAvailable {
		t.Errorf("followup status = %s", followup.Status)
	}
}

func TestComplete_FollowupInvalidRollsBack(t *testing.T) {
	e, _ := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	if _, err := e.Reserve(ctx, task.ID, "worker-1"); err != nil {
		t.Fatal(err)
	}
	_, _, err := e.Complete(ctx, task.ID, "worker-1", "", &FollowupSpec{
		Title: "bad followup", Type: "bogus",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	// The completion itself must not have committed either.
	tc, err := e.Context(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tc.Task.Status != domain.StatusInProgress {
		t.Errorf("status = %s, want in_progress", tc.Task.Status)
	}
	if tc.Task.AssignedAgent != "worker-1" {
		t.Errorf("agent = %s", tc.Task.AssignedAgent)
	}
}

func TestUnlock(t *testing.T) {
	e, _ := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	if _, err := e.Reserve(ctx, task.ID, "worker-1"); err != nil {
		t.Fatal(err)
	}
	released, err := e.Unlock(ctx, task.ID, "worker-1")
	if err != nil {
		t.Fatal(err)
	}
	if released.Status != domain.StatusAvailable {
		t.Errorf("status = %s", released.Status)
	}
	if released.AssignedAgent != "" || released.ReservedAt != nil {
		t.Errorf("claim fields not cleared: %+v", released)
	}

	// Explicit release carries no stale warning for the next owner.
	tc, err := e.Reserve(ctx, task.ID, "worker-2")
	if err != nil {
		t.Fatal(err)
	}
	if tc.StaleWarning != nil {
		t.Errorf("stale warning = %+v, want nil", tc.StaleWarning)
	}
}

func TestUnlock_NotOwner(t *testing.T) {
	e, _ := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	if _, err := e.Reserve(ctx, task.ID, "worker-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Unlock(ctx, task.ID, "worker-2"); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
}

func TestAdminUnlock(t *testing.T) {
	e, _ := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	// Works even on completed tasks, clearing completion fields.
	if _, err := e.Reserve(ctx, task.ID, "worker-1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Complete(ctx, task.ID, "worker-1", "", nil); err != nil {
		t.Fatal(err)
	}
	released, err := e.AdminUnlock(ctx, task.ID, "operator")
	if err != nil {
		t.Fatal(err)
	}
	if released.Status != domain.StatusAvailable {
		t.Errorf("status = %s", released.Status)
	}
	if released.CompletedAt != nil || released.CompletedBy != "" {
		t.Errorf("completion fields not cleared: %+v", released)
	}

	// Already-available tasks are rejected.
	if _, err := e.AdminUnlock(ctx, task.ID, "operator"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestReclaimStale(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	stale := createTask(t, e)
	if _, err := e.Reserve(ctx, stale.ID, "worker-dead"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)
	fresh := createTask(t, e)
	if _, err := e.Reserve(ctx, fresh.ID, "worker-live"); err != nil {
		t.Fatal(err)
	}

	reclaimed, err := e.ReclaimStale(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != stale.ID {
		t.Fatalf("reclaimed = %+v", reclaimed)
	}

	// The fresh reservation is untouched.
	tc, err := e.Context(ctx, fresh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tc.Task.AssignedAgent != "worker-live" {
		t.Errorf("fresh agent = %s", tc.Task.AssignedAgent)
	}

	// Reclamation leaves a finding naming the displaced agent.
	updates, err := e.Updates(ctx, stale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 || updates[0].Type != domain.UpdateFinding {
		t.Fatalf("updates = %+v", updates)
	}
	if updates[0].Metadata["displaced_agent"] != "worker-dead" {
		t.Errorf("metadata = %+v", updates[0].Metadata)
	}
}

func TestReclaimStale_Idempotent(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	task := createTask(t, e)
	if _, err := e.Reserve(ctx, task.ID, "worker-dead"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)

	first, err := e.ReclaimStale(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("first run reclaimed %d", len(first))
	}
	second, err := e.ReclaimStale(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Fatalf("second run reclaimed %d, want 0", len(second))
	}
}

func TestReserve_StaleWarningAfterReclaim(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	task := createTask(t, e)
	if _, err := e.Reserve(ctx, task.ID, "worker-dead"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := e.ReclaimStale(ctx, time.Hour); err != nil {
		t.Fatal(err)
	}

	tc, err := e.Reserve(ctx, task.ID, "worker-2")
	if err != nil {
		t.Fatal(err)
	}
	if tc.StaleWarning == nil {
		t.Fatal("no stale warning after timeout release")
	}
	if tc.StaleWarning.PriorAgent != "worker-dead" {
		t.Errorf("prior agent = %s", tc.StaleWarning.PriorAgent)
	}
}

func TestAddUpdateAndContext(t *testing.T) {
	e, _ := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	if _, err := e.AddUpdate(ctx, task.ID, "worker-1", "tokenizer half done", domain.UpdateProgress, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddUpdate(ctx, task.ID, "worker-1", "grammar spec ambiguous", domain.UpdateBlocker, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddUpdate(ctx, task.ID, "worker-1", "x", "bogus", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad type err = %v", err)
	}
	if _, err := e.AddUpdate(ctx, "missing", "worker-1", "x", domain.UpdateNote, nil); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("missing task err = %v", err)
	}

	tc, err := e.Context(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tc.Updates) != 2 {
		t.Fatalf("updates = %d", len(tc.Updates))
	}
	if tc.Updates[0].Content != "tokenizer half done" {
		t.Errorf("first update = %q", tc.Updates[0].Content)
	}
}

func TestContext_Ancestry(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	epic, err := e.Create(ctx, domain.TaskSpec{
		Title: "rewrite storage", Type: domain.TypeEpic, Instruction: "x", VerificationInstruction: "v", AgentID: "planner",
	})
	if err != nil {
		t.Fatal(err)
	}
	child, err := e.Create(ctx, domain.TaskSpec{
		Title: "schema design", Type: domain.TypeAbstract, Instruction: "x", VerificationInstruction: "v", AgentID: "planner",
		ParentTaskID: epic.ID, Relationship: domain.RelSubtask,
	})
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := e.Create(ctx, domain.TaskSpec{
		Title: "write DDL", Type: domain.TypeConcrete, Instruction: "x", VerificationInstruction: "v", AgentID: "planner",
		ParentTaskID: child.ID, Relationship: domain.RelSubtask,
	})
	if err != nil {
		t.Fatal(err)
	}

	tc, err := e.Context(ctx, leaf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tc.Ancestry) != 2 {
		t.Fatalf("ancestry = %d", len(tc.Ancestry))
	}
	// Nearest parent first.
	if tc.Ancestry[0].ID != child.ID || tc.Ancestry[1].ID != epic.ID {
		t.Errorf("ancestry order = %s, %s", tc.Ancestry[0].ID, tc.Ancestry[1].ID)
	}
}

func TestSubscribe(t *testing.T) {
	e, _ := newTestEngine(t)

	events := make(chan domain.Event, 8)
	e.Subscribe(func(ev domain.Event) { events <- ev })

	task := createTask(t, e)
	select {
	case ev := <-events:
		if ev.Kind != domain.EventCreated || ev.Task.ID != task.ID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}
