package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/config"
	"github.com/trunkrs/trunk/internal/document"
)

func TestTryAcceptCopyFileMissingHref(t *testing.T) {
	attrs := asset.NewAttrs()
	attrs.Set("rel", "copy-file")
	in := asset.Input{ID: 1, Kind: "link", Attrs: attrs, ManifestDir: t.TempDir()}

	_, _, err := TryAcceptCopyFile(&Env{Config: &config.BuildConfig{}}, in)
	if err == nil {
		t.Fatal("expected error for missing href")
	}
}

func TestTryAcceptCopyFileWrongRel(t *testing.T) {
	attrs := asset.NewAttrs()
	attrs.Set("rel", "css")
	in := asset.Input{ID: 1, Kind: "link", Attrs: attrs, ManifestDir: t.TempDir()}

	runnable, matched, err := TryAcceptCopyFile(&Env{Config: &config.BuildConfig{}}, in)
	if err != nil || matched || runnable != nil {
		t.Fatalf("expected no match for rel=css, got matched=%v err=%v", matched, err)
	}
}

func TestCopyFileRunCopiesUnhashed(t *testing.T) {
	srcDir := t.TempDir()
	stagingDist := t.TempDir()

	srcPath := filepath.Join(srcDir, "favicon.ico")
	if err := os.WriteFile(srcPath, []byte("icon-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	attrs := asset.NewAttrs()
	attrs.Set("rel", "copy-file")
	attrs.Set("href", "favicon.ico")
	in := asset.Input{ID: 7, Kind: "link", Attrs: attrs, ManifestDir: srcDir}

	env := &Env{Config: &config.BuildConfig{StagingDist: stagingDist}}
	runnable, matched, err := TryAcceptCopyFile(env, in)
	if err != nil || !matched {
		t.Fatalf("expected match, got matched=%v err=%v", matched, err)
	}

	out, err := runnable.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	destPath := filepath.Join(stagingDist, "favicon.ico")
	data, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("expected copied file at %s: %v", destPath, err)
	}
	if string(data) != "icon-bytes" {
		t.Errorf("unexpected copied content: %q", data)
	}

	doc, err := document.New([]byte(`<html><head><link data-trunk-id="7" rel="copy-file" href="favicon.ico"></head><body></body></html>`), document.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := out.Finalize(doc); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if doc.Len(document.IDSelector(7)) != 0 {
		t.Error("expected source link element removed after finalize")
	}
}
