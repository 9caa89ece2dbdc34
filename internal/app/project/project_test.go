package project

import (
	"context"
	"errors"
	"testing"

	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/infra/sqlite"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, nil)
}

func TestCreateAndGet(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	p, err := s.Create(ctx, "compiler", "self-hosting compiler work")
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == "" {
		t.Error("no id assigned")
	}

	byID, err := s.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if byID.Name != "compiler" {
		t.Errorf("name = %s", byID.Name)
	}

	byName, err := s.GetByName(ctx, "compiler")
	if err != nil {
		t.Fatal(err)
	}
	if byName.ID != p.ID {
		t.Errorf("id = %s", byName.ID)
	}
}

func TestCreate_Invalid(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty name err = %v", err)
	}

	if _, err := s.Create(ctx, "dup", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, "dup", ""); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("dup err = %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Fatalf("err = %v, want ErrProjectNotFound", err)
	}
}

func TestList(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta"} {
		if _, err := s.Create(ctx, name, ""); err != nil {
			t.Fatal(err)
		}
	}
	projects, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 {
		t.Fatalf("len = %d", len(projects))
	}
}
