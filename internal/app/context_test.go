package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"signoff/internal/engine"
	"signoff/internal/repo"
)

func TestOpenAndResolveActor(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "signoff.yml"), []byte("notifications:\n  window_days: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	a, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.Generator().Window.Hours() != 72 {
		t.Fatalf("window not taken from config: %s", a.Generator().Window)
	}

	if _, err := ResolveActor(ctx, a.Engine.Repo, ""); err == nil {
		t.Fatalf("expected error without supervisor")
	}
	sup, err := a.Engine.RegisterEmployee(ctx, engine.RegisterOptions{Name: "Chief", Email: "chief@example.com", Password: "secret1", Role: "supervisor"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := ResolveActor(ctx, a.Engine.Repo, "")
	if err != nil || got.ID != sup.ID {
		t.Fatalf("default actor: %+v %v", got, err)
	}
	got, err = ResolveActor(ctx, a.Engine.Repo, "CHIEF@example.com")
	if err != nil || got.ID != sup.ID {
		t.Fatalf("actor by email: %+v %v", got, err)
	}
	if _, err := ResolveActor(ctx, a.Engine.Repo, "nobody"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
