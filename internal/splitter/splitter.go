// Package splitter breaks a source document into fragments small enough
// for downstream extraction. Splitting is pure: no I/O happens here, the
// caller persists the returned fragments and manifest.
package splitter

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ofisk/loresmith-ai-sub003/pkg/token"
)

// Fragment is one piece of a split document, ready to be written to the
// object store under Key.
type Fragment struct {
	Key         string
	Data        []byte
	ContentType string
	Size        int
}

// FragmentDescriptor is the manifest entry for one fragment.
type FragmentDescriptor struct {
	Key         string `json:"key"`
	Size        int    `json:"size"`
	ContentType string `json:"contentType"`
}

// Manifest describes a completed split. The verification token is freshly
// generated on every call so a later manifest read can be matched to the
// write that produced it.
type Manifest struct {
	OriginalFilename  string               `json:"originalFilename"`
	FragmentCount     int                  `json:"fragmentCount"`
	TotalSize         int64                `json:"totalSize"`
	VerificationToken string               `json:"verificationToken"`
	Fragments         []FragmentDescriptor `json:"fragments"`
}

// Split divides a document into ordered fragments no larger than
// maxFragmentSize, choosing a strategy by content type. It never fails for
// valid byte input: structural strategies that cannot process the document
// degrade to fixed-size byte slicing.
func Split(data []byte, contentType string, maxFragmentSize int, originalFilename, tenant string) ([]Fragment, Manifest) {
	if maxFragmentSize <= 0 {
		maxFragmentSize = 1
	}

	keys := newKeyGenerator(tenant, originalFilename)

	var fragments []Fragment
	switch {
	case len(data) <= maxFragmentSize:
		fragments = []Fragment{keys.fragment(data, contentType)}
	case isPDF(contentType, originalFilename):
		fragments = splitPDF(data, maxFragmentSize, contentType, keys)
	case isMarkdown(contentType, originalFilename):
		fragments = splitMarkdown(data, maxFragmentSize, contentType, keys)
	case isText(contentType):
		fragments = splitText(data, maxFragmentSize, contentType, keys)
	default:
		fragments = splitBytes(data, maxFragmentSize, contentType, keys)
	}

	manifest := Manifest{
		OriginalFilename:  originalFilename,
		FragmentCount:     len(fragments),
		TotalSize:         int64(len(data)),
		VerificationToken: token.GenerateRandomString(16),
		Fragments:         make([]FragmentDescriptor, 0, len(fragments)),
	}
	for _, frag := range fragments {
		manifest.Fragments = append(manifest.Fragments, FragmentDescriptor{
			Key:         frag.Key,
			Size:        frag.Size,
			ContentType: frag.ContentType,
		})
	}
	return fragments, manifest
}

// ManifestKey returns the object-store key under which the manifest for a
// document is stored.
func ManifestKey(tenant, originalFilename string) string {
	base := strings.TrimSuffix(originalFilename, filepath.Ext(originalFilename))
	return fmt.Sprintf("%s/%s.manifest.json", tenant, base)
}

func isPDF(contentType, filename string) bool {
	return contentType == "application/pdf" || strings.EqualFold(filepath.Ext(filename), ".pdf")
}

func isMarkdown(contentType, filename string) bool {
	if contentType == "text/markdown" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".md" || ext == ".markdown"
}

func isText(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		contentType == "application/json" ||
		contentType == "application/xml"
}

// keyGenerator hands out sequential fragment keys of the form
// {tenant}/{base}.p{seq}{ext}. Zero-padding the sequence keeps keys in
// lexicographic order.
type keyGenerator struct {
	tenant string
	base   string
	ext    string
	seq    int
}

func newKeyGenerator(tenant, originalFilename string) *keyGenerator {
	ext := filepath.Ext(originalFilename)
	return &keyGenerator{
		tenant: tenant,
		base:   strings.TrimSuffix(originalFilename, ext),
		ext:    ext,
	}
}

func (g *keyGenerator) next() string {
	g.seq++
	return fmt.Sprintf("%s/%s.p%03d%s", g.tenant, g.base, g.seq, g.ext)
}

func (g *keyGenerator) fragment(data []byte, contentType string) Fragment {
	return Fragment{
		Key:         g.next(),
		Data:        data,
		ContentType: contentType,
		Size:        len(data),
	}
}

// splitText chunks text at UTF-8 rune boundaries, preferring to break at
// whitespace. A whitespace break is only taken when it falls within the
// last 20% of the chunk; further back, the hard cut wins so that text with
// rare whitespace does not degrade into tiny fragments. Concatenating the
// fragments in order reproduces the input exactly.
func splitText(data []byte, maxFragmentSize int, contentType string, keys *keyGenerator) []Fragment {
	var fragments []Fragment
	rest := data
	for len(rest) > 0 {
		if len(rest) <= maxFragmentSize {
			fragments = append(fragments, keys.fragment(rest, contentType))
			break
		}

		cut := maxFragmentSize
		for cut > 0 && !utf8.RuneStart(rest[cut]) {
			cut--
		}
		if cut == 0 {
			// Not valid UTF-8 at this position, take the hard cut.
			cut = maxFragmentSize
		}

		if ws := lastWhitespace(rest[:cut]); ws > 0 && ws >= cut*4/5 {
			cut = ws + 1 // keep the whitespace with the leading fragment
		}

		fragments = append(fragments, keys.fragment(rest[:cut], contentType))
		rest = rest[cut:]
	}
	return fragments
}

// lastWhitespace returns the index of the last ASCII whitespace byte in b,
// or -1 when there is none.
func lastWhitespace(b []byte) int {
	for i := len(b) - 1; i >= 0; i-- {
		switch b[i] {
		case ' ', '\n', '\t', '\r':
			return i
		}
	}
	return -1
}

// splitMarkdown splits at the document's minimal heading level and packs
// consecutive sections into fragments up to the size cap. A document with
// no headings falls back to plain text chunking.
func splitMarkdown(data []byte, maxFragmentSize int, contentType string, keys *keyGenerator) []Fragment {
	sections := markdownSections(data)
	if len(sections) <= 1 {
		return splitText(data, maxFragmentSize, contentType, keys)
	}

	var fragments []Fragment
	var current []byte
	flush := func() {
		if len(current) > 0 {
			fragments = append(fragments, keys.fragment(current, contentType))
			current = nil
		}
	}

	for _, section := range sections {
		if len(section) > maxFragmentSize {
			// A single oversized section gets chunked on its own.
			flush()
			fragments = append(fragments, splitText(section, maxFragmentSize, contentType, keys)...)
			continue
		}
		if len(current)+len(section) > maxFragmentSize {
			flush()
		}
		current = append(current, section...)
	}
	flush()
	return fragments
}

// markdownSections cuts the document at ATX headings of the minimal level
// present. The byte concatenation of the returned sections equals the
// input.
func markdownSections(data []byte) [][]byte {
	lines := strings.SplitAfter(string(data), "\n")

	minLevel := 0
	for _, line := range lines {
		if level := headingLevel(line); level > 0 && (minLevel == 0 || level < minLevel) {
			minLevel = level
		}
	}
	if minLevel == 0 {
		return nil
	}

	var sections [][]byte
	var current []byte
	for _, line := range lines {
		if headingLevel(line) == minLevel && len(current) > 0 {
			sections = append(sections, current)
			current = nil
		}
		current = append(current, line...)
	}
	if len(current) > 0 {
		sections = append(sections, current)
	}
	return sections
}

// headingLevel returns the ATX heading level of a line, or 0 when the line
// is not a heading.
func headingLevel(line string) int {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0
	}
	if level >= len(line) {
		return 0
	}
	if line[level] != ' ' && line[level] != '\t' {
		return 0
	}
	return level
}

// splitBytes slices at fixed offsets. This is the universal fallback.
func splitBytes(data []byte, maxFragmentSize int, contentType string, keys *keyGenerator) []Fragment {
	var fragments []Fragment
	for off := 0; off < len(data); off += maxFragmentSize {
		end := off + maxFragmentSize
		if end > len(data) {
			end = len(data)
		}
		fragments = append(fragments, keys.fragment(data[off:end], contentType))
	}
	return fragments
}
