package config

import (
	"testing"

	"github.com/trunkrs/trunk/internal/digest"
)

func TestMinifyAsset(t *testing.T) {
	cases := []struct {
		policy    MinifyPolicy
		release   bool
		noMinify  bool
		wantMinify bool
	}{
		{MinifyNever, true, false, false},
		{MinifyAlways, false, false, true},
		{MinifyOnRelease, true, false, true},
		{MinifyOnRelease, false, false, false},
		{MinifyAlways, false, true, false},
	}
	for _, c := range cases {
		cfg := &BuildConfig{Minify: c.policy, Release: c.release}
		if got := cfg.MinifyAsset(c.noMinify); got != c.wantMinify {
			t.Errorf("policy=%s release=%v noMinify=%v: got %v, want %v",
				c.policy, c.release, c.noMinify, got, c.wantMinify)
		}
	}
}

func TestIntegrityOrDefault(t *testing.T) {
	cfg := &BuildConfig{NoSRI: false}
	if got := cfg.IntegrityOrDefault(""); got != digest.DefaultUnless(false) {
		t.Errorf("expected default algorithm, got %q", got)
	}

	cfg = &BuildConfig{NoSRI: true}
	if got := cfg.IntegrityOrDefault(""); got != digest.DefaultUnless(true) {
		t.Errorf("expected no-sri algorithm, got %q", got)
	}

	if got := cfg.IntegrityOrDefault("sha384"); string(got) != "sha384" {
		t.Errorf("expected override sha384 to win, got %q", got)
	}

	if got := cfg.IntegrityOrDefault("not-a-real-algo"); got != digest.DefaultUnless(true) {
		t.Errorf("expected fallback to default on invalid override, got %q", got)
	}
}
