package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trunkrs/trunk/internal/logx"
)

func TestWatcherIgnoreExcludesPrefixedPaths(t *testing.T) {
	root := t.TempDir()
	w, err := New([]string{root}, nil, logx.New(nullWriter{}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	target := filepath.Join(root, "target")
	if w.isIgnored(filepath.Join(target, "debug", "build")) {
		t.Fatal("path should not be ignored before Ignore is called")
	}
	w.Ignore(target)
	if !w.isIgnored(filepath.Join(target, "debug", "build")) {
		t.Error("expected path under ignored dir to be ignored")
	}
	if !w.isIgnored(target) {
		t.Error("expected the ignored dir itself to be ignored")
	}
}

func TestWatcherIgnoresGitByDefault(t *testing.T) {
	root := t.TempDir()
	w, err := New([]string{root}, nil, logx.New(nullWriter{}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	if !w.isIgnored(filepath.Join(root, ".git", "HEAD")) {
		t.Error("expected .git paths ignored by the static blacklist")
	}
}

func TestRunCoalescesEventsDuringBusyRebuild(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "seed.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New([]string{root}, nil, logx.New(nullWriter{}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan struct{}, 16)
	release := make(chan struct{})
	rebuild := func(ctx context.Context) {
		runs <- struct{}{}
		<-release
	}

	go w.Run(ctx, rebuild)

	// Wait for the watcher to pick up its first run (triggered by file
	// writes below), then fire a burst of events while it is busy.
	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 5; i++ {
		_ = os.WriteFile(filepath.Join(root, "seed.txt"), []byte("y"), 0o644)
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case <-runs:
	case <-time.After(time.Second):
		t.Fatal("expected at least one rebuild to start")
	}
	release <- struct{}{}

	// A coalesced pending rebuild (if any) should start promptly after
	// the first completes; it must not fire once per queued event.
	select {
	case <-runs:
		release <- struct{}{}
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case <-runs:
		t.Fatal("expected events during the busy window to coalesce into at most one pending rebuild")
	default:
	}
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
