package dispatch

import (
	"testing"
)

func TestDispatchClassifiesAndAssignsIDs(t *testing.T) {
	html := []byte(`<!DOCTYPE html>
<html>
<head>
  <link data-trunk rel="css" href="styles.css">
  <link data-trunk rel="icon" href="favicon.ico">
</head>
<body>
  <script data-trunk src="app.js"></script>
</body>
</html>`)

	result, err := Dispatch(html, "/project", false)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(result.Assets) != 3 {
		t.Fatalf("expected 3 assets, got %d", len(result.Assets))
	}
	if result.RustElement != nil {
		t.Fatalf("expected no rust element, got %+v", result.RustElement)
	}

	for i, in := range result.Assets {
		if in.ID != i {
			t.Errorf("asset %d: expected id %d, got %d", i, i, in.ID)
		}
	}
	if !result.Assets[2].IsScript {
		t.Error("expected script element to report IsScript true")
	}
}

func TestDispatchSplitsOffSingleRustElement(t *testing.T) {
	html := []byte(`<html><head><link data-trunk rel="rust" href="Cargo.toml"></head><body></body></html>`)

	result, err := Dispatch(html, "/project", false)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if result.RustElement == nil {
		t.Fatal("expected a rust element")
	}
	if len(result.Assets) != 0 {
		t.Errorf("expected rust element excluded from Assets, got %d", len(result.Assets))
	}
}

func TestDispatchRejectsMultipleRustElements(t *testing.T) {
	html := []byte(`<html><head>
  <link data-trunk rel="rust" href="Cargo.toml">
  <link data-trunk rel="rust" href="other/Cargo.toml">
</head><body></body></html>`)

	_, err := Dispatch(html, "/project", false)
	if err == nil {
		t.Fatal("expected error for more than one main rust element")
	}
}

func TestDispatchAllowsMainPlusWorkerRustElements(t *testing.T) {
	html := []byte(`<html><head>
  <link data-trunk rel="rust" href="Cargo.toml">
  <link data-trunk rel="rust" data-type="worker" href="worker/Cargo.toml">
  <link data-trunk rel="rust" data-type="worker" href="other-worker/Cargo.toml">
</head><body></body></html>`)

	result, err := Dispatch(html, "/project", false)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if result.RustElement == nil {
		t.Fatal("expected a main rust element")
	}
	if len(result.WorkerRustElements) != 2 {
		t.Fatalf("expected 2 worker rust elements, got %d", len(result.WorkerRustElements))
	}
	if len(result.Assets) != 0 {
		t.Errorf("expected rust elements excluded from Assets, got %d", len(result.Assets))
	}
}

func TestDispatchRejectsSelfClosingScriptUnlessAllowed(t *testing.T) {
	html := []byte(`<html><head><script data-trunk src="app.js"/></head><body></body></html>`)

	if _, err := Dispatch(html, "/project", false); err == nil {
		t.Fatal("expected self-closing script to be rejected by default")
	}
	if _, err := Dispatch(html, "/project", true); err != nil {
		t.Fatalf("expected self-closing script allowed with flag set: %v", err)
	}
}
