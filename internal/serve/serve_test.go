package serve

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestIsHashedAsset(t *testing.T) {
	cases := map[string]bool{
		"app-a1b2c3d4.js":      true,
		"app-ab12ef34cd56.css": true,
		"index.html":           false,
		"app.js":               false,
		"app-short.js":         false,
	}
	for name, want := range cases {
		if got := isHashedAsset(name); got != want {
			t.Errorf("isHashedAsset(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNormalizeAssetPath(t *testing.T) {
	cases := map[string]string{
		"/app.js":          "app.js",
		"/assets/app.js":   "assets/app.js",
		"/":                "",
		"":                 "",
		"/../../etc/passwd": "",
		"/./app.js":        "app.js",
	}
	for in, want := range cases {
		if got := normalizeAssetPath(in); got != want {
			t.Errorf("normalizeAssetPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHandleStaticSetsCacheHeadersByHashedness(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app-deadbeef12.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv, err := New(dir, "", "", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	handler := srv.Handler("/_trunk/ws", "")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/app-deadbeef12.js", nil)
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Cache-Control"); got != "public, max-age=31536000, immutable" {
		t.Errorf("hashed asset cache-control = %q", got)
	}

	rr2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/missing-page", nil)
	handler.ServeHTTP(rr2, req2)
	if got := rr2.Header().Get("Cache-Control"); got != "public, max-age=300" {
		t.Errorf("SPA fallback cache-control = %q", got)
	}
	if rr2.Code != http.StatusOK {
		t.Errorf("expected SPA fallback to serve index.html with 200, got %d", rr2.Code)
	}
}
