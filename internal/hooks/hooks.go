// Package hooks runs the user-configured pre-build, build, and
// post-build external commands. Pre-build hooks form a barrier before
// any pipeline starts; build hooks run concurrently alongside asset
// pipelines; post-build hooks form a barrier after the document is
// written. Grounded on spec.md §4.14 and the spawn_hooks/wait_hooks
// usage in src/pipelines/html.rs.
package hooks

import (
	"context"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"

	"github.com/trunkrs/trunk/internal/config"
	"github.com/trunkrs/trunk/internal/logx"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// RunBarrier runs every command in cmds concurrently and waits for all
// of them, returning the first error encountered (if any).
func RunBarrier(ctx context.Context, cmds []config.HookCommand, log *logx.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range cmds {
		c := c
		g.Go(func() error { return run(gctx, c, log) })
	}
	return g.Wait()
}

// Spawn starts every command in cmds without waiting, returning a
// function that blocks until all of them finish. Used for build hooks,
// which run alongside asset pipelines rather than gating them.
func Spawn(ctx context.Context, cmds []config.HookCommand, log *logx.Logger) func() error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range cmds {
		c := c
		g.Go(func() error { return run(gctx, c, log) })
	}
	return g.Wait
}

func run(ctx context.Context, c config.HookCommand, log *logx.Logger) error {
	if log != nil {
		log.Start("running hook: %s", c.Command)
	}
	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonHookFailed, c.Command, err)
	}
	return nil
}
