// Package document implements the single-owner, CSS-selector-addressed
// HTML document the Finalizer mutates. Grounded on
// src/common/html_rewrite.rs and src/pipelines/html.rs (the nipper
// Document.select API it wraps on the Rust side).
package document

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/trunkrs/trunk/internal/trunkerr"
)

// Options configures document construction.
type Options struct {
	AllowSelfClosingScript bool
}

// Document wraps a parsed HTML tree. It is not safe for concurrent use;
// by design only the Finalizer ever mutates one.
type Document struct {
	doc *goquery.Document
}

var selfClosingScript = regexp.MustCompile(`(?is)<script\b[^>]*/>`)

// New parses data into a Document. It fails if a self-closing
// `<script/>` tag is present and not explicitly allowed: such input
// would silently swallow everything following it once re-serialized,
// since HTML parses `<script>` as requiring an explicit close tag.
func New(data []byte, opts Options) (*Document, error) {
	if !opts.AllowSelfClosingScript && selfClosingScript.Match(data) {
		return nil, trunkerr.New(trunkerr.ReasonSelfClosingScript,
			`self-closing <script/> tag found; close it explicitly or set build.allow_self_closing_script`)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonFsRead, "parsing HTML", err)
	}
	return &Document{doc: doc}, nil
}

// Select returns the set of nodes matching selector.
func (d *Document) Select(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Len reports how many nodes match selector.
func (d *Document) Len(selector string) int {
	return d.doc.Find(selector).Length()
}

// SetAttr sets attr=value on every node matching selector (the
// id-scoped selectors used by the pipelines match a single element).
func (d *Document) SetAttr(selector, attr, value string) {
	d.doc.Find(selector).SetAttr(attr, value)
}

// RemoveAttr removes attr from every node matching selector.
func (d *Document) RemoveAttr(selector, attr string) {
	d.doc.Find(selector).RemoveAttr(attr)
}

// AppendHTML appends raw HTML as children of every node matching
// selector.
func (d *Document) AppendHTML(selector, htmlFragment string) {
	d.doc.Find(selector).AppendHtml(htmlFragment)
}

// ReplaceWithHTML replaces every node matching selector with the parsed
// fragment.
func (d *Document) ReplaceWithHTML(selector, htmlFragment string) {
	d.doc.Find(selector).ReplaceWithHtml(htmlFragment)
}

// Remove deletes every node matching selector.
func (d *Document) Remove(selector string) {
	d.doc.Find(selector).Remove()
}

// Exists reports whether selector matches anything.
func (d *Document) Exists(selector string) bool {
	return d.doc.Find(selector).Length() > 0
}

// HTML serializes the full document back to bytes.
func (d *Document) HTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.doc.Nodes[0]); err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonFsWrite, "serializing HTML", err)
	}
	out := buf.String()
	// golang.org/x/net/html always renders a doctype-less <html> root even
	// for fragments with none in the source; strip nothing here, the
	// source is expected to be a full document.
	return []byte(out), nil
}

// IDSelector builds the selector used to address a dispatcher-assigned
// element by its data-trunk-id attribute.
func IDSelector(id int) string {
	return `[data-trunk-id="` + strconv.Itoa(id) + `"]`
}

// NormalizeWhitespace collapses runs of whitespace, used by tests that
// assert on rendered HTML fragments without depending on the exact
// serializer formatting.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
