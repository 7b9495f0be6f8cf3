// Package integrity collects SRI records produced during a build and
// renders them as preload/modulepreload <link> injections for the
// RustApp finalize step. Grounded on processing/integrity.rs's usage in
// pipelines/rust/mod.rs.
package integrity

import (
	"fmt"

	"github.com/trunkrs/trunk/internal/digest"
)

// Kind names the rel attribute of a resource hint link.
type Kind string

const (
	KindPreload       Kind = "preload"
	KindModulePreload Kind = "modulepreload"
)

// Record describes one resource-hint link to emit. Keyed by (Kind,
// Name); a later Set for the same key replaces the earlier one.
type Record struct {
	Kind   Kind
	Name   string
	As     string
	Type   string
	Digest digest.Output
}

// Builder accumulates Records in insertion order, deduplicating by key.
type Builder struct {
	order []string
	byKey map[string]Record
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{byKey: map[string]Record{}}
}

func key(kind Kind, name string) string {
	return string(kind) + "|" + name
}

// Set inserts or replaces a record.
func (b *Builder) Set(r Record) {
	k := key(r.Kind, r.Name)
	if _, exists := b.byKey[k]; !exists {
		b.order = append(b.order, k)
	}
	b.byKey[k] = r
}

// Records returns all records in insertion order.
func (b *Builder) Records() []Record {
	out := make([]Record, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.byKey[k])
	}
	return out
}

// RenderLink formats a Record as a <link> element for injection into
// <head>.
func RenderLink(publicURL string, r Record) string {
	attrs := fmt.Sprintf(`rel="%s" href="%s%s"`, r.Kind, publicURL, r.Name)
	if r.As != "" {
		attrs += fmt.Sprintf(` as="%s"`, r.As)
	}
	if r.Type != "" {
		attrs += fmt.Sprintf(` type="%s"`, r.Type)
	}
	if v := r.Digest.ToValue(); v != "" {
		attrs += fmt.Sprintf(` integrity="%s" crossorigin="anonymous"`, v)
	}
	return "<link " + attrs + "/>"
}
