package asset

import "strings"

// Attrs is an insertion-ordered string/string map, matching the
// attribute-order preservation the dispatcher relies on for idempotent
// rewriting.
type Attrs struct {
	keys   []string
	values map[string]string
}

// NewAttrs returns an empty ordered attribute map.
func NewAttrs() *Attrs {
	return &Attrs{values: map[string]string{}}
}

// Set inserts or updates a key, preserving first-insertion order.
func (a *Attrs) Set(key, value string) {
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns the value for key and whether it was present.
func (a *Attrs) Get(key string) (string, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Has reports whether key is present (used for boolean attributes such
// as `data-keep-debug`).
func (a *Attrs) Has(key string) bool {
	_, ok := a.values[key]
	return ok
}

// Delete removes key, if present.
func (a *Attrs) Delete(key string) {
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// Keys returns attribute keys in insertion order.
func (a *Attrs) Keys() []string {
	return append([]string(nil), a.keys...)
}

// Clone returns a deep copy.
func (a *Attrs) Clone() *Attrs {
	c := NewAttrs()
	for _, k := range a.keys {
		c.Set(k, a.values[k])
	}
	return c
}

// WithoutPrefixAndKeys returns a clone excluding any key beginning with
// prefix and any key named in excl, used by the Js pipeline to drop
// `src` and every `data-trunk*` attribute before re-emitting the tag.
func (a *Attrs) WithoutPrefixAndKeys(prefix string, excl ...string) *Attrs {
	exclSet := map[string]bool{}
	for _, e := range excl {
		exclSet[e] = true
	}
	c := NewAttrs()
	for _, k := range a.keys {
		if prefix != "" && strings.HasPrefix(k, prefix) {
			continue
		}
		if exclSet[k] {
			continue
		}
		c.Set(k, a.values[k])
	}
	return c
}

// Render formats the attrs as HTML attribute text (leading space before
// each), skipping any key in exclude.
func (a *Attrs) Render(exclude ...string) string {
	exclSet := map[string]bool{}
	for _, e := range exclude {
		exclSet[e] = true
	}
	var b strings.Builder
	for _, k := range a.keys {
		if exclSet[k] {
			continue
		}
		v := a.values[k]
		b.WriteByte(' ')
		b.WriteString(k)
		if v != "" {
			b.WriteString(`="`)
			b.WriteString(escapeAttr(v))
			b.WriteString(`"`)
		}
	}
	return b.String()
}

func escapeAttr(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
