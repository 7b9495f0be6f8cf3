package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/config"
)

func TestCopyDirRunRetargetsIntoSubPath(t *testing.T) {
	srcDir := t.TempDir()
	stagingDist := t.TempDir()

	if err := os.MkdirAll(filepath.Join(srcDir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "nested", "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	attrs := asset.NewAttrs()
	attrs.Set("rel", "copy-dir")
	attrs.Set("href", srcDir)
	attrs.Set("data-target-path", "assets/static")
	in := asset.Input{ID: 3, Kind: "link", Attrs: attrs, ManifestDir: filepath.Dir(srcDir)}

	env := &Env{Config: &config.BuildConfig{StagingDist: stagingDist}}
	runnable, matched, err := TryAcceptCopyDir(env, in)
	if err != nil || !matched {
		t.Fatalf("expected match, got matched=%v err=%v", matched, err)
	}

	if _, err := runnable.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, rel := range []string{filepath.Join("assets", "static", "a.txt"), filepath.Join("assets", "static", "nested", "b.txt")} {
		if _, err := os.Stat(filepath.Join(stagingDist, rel)); err != nil {
			t.Errorf("expected %s to exist: %v", rel, err)
		}
	}
}

func TestTryAcceptCopyDirRejectsPathEscape(t *testing.T) {
	srcDir := t.TempDir()

	attrs := asset.NewAttrs()
	attrs.Set("rel", "copy-dir")
	attrs.Set("href", srcDir)
	attrs.Set("data-target-path", "../../escape")
	in := asset.Input{ID: 4, Kind: "link", Attrs: attrs, ManifestDir: filepath.Dir(srcDir)}

	env := &Env{Config: &config.BuildConfig{StagingDist: t.TempDir()}}
	_, _, err := TryAcceptCopyDir(env, in)
	if err == nil {
		t.Fatal("expected path-escape rejection")
	}
}
