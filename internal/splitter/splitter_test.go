package splitter

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_SmallInputSingleFragment(t *testing.T) {
	data := []byte("a short document")

	fragments, manifest := Split(data, "text/plain", 1024, "notes.txt", "tenant")

	require.Len(t, fragments, 1)
	assert.Equal(t, data, fragments[0].Data)
	assert.Equal(t, "tenant/notes.p001.txt", fragments[0].Key)
	assert.Equal(t, 1, manifest.FragmentCount)
	assert.Equal(t, int64(len(data)), manifest.TotalSize)
	assert.NotEmpty(t, manifest.VerificationToken)
}

func TestSplit_VerificationTokenIsFresh(t *testing.T) {
	data := []byte("same input")

	_, first := Split(data, "text/plain", 1024, "a.txt", "t")
	_, second := Split(data, "text/plain", 1024, "a.txt", "t")

	assert.NotEqual(t, first.VerificationToken, second.VerificationToken)
}

func TestSplit_TextLosslessConcatenation(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
	}{
		{"prose with spaces", strings.Repeat("the quick brown fox jumps over the lazy dog ", 50), 100},
		{"no whitespace at all", strings.Repeat("x", 1000), 64},
		{"newline separated", strings.Repeat("line one\nline two\nline three\n", 40), 80},
		{"multibyte runes", strings.Repeat("héllo wörld çafé ", 60), 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fragments, manifest := Split([]byte(tt.text), "text/plain", tt.max, "doc.txt", "t")

			var rebuilt bytes.Buffer
			for _, frag := range fragments {
				rebuilt.Write(frag.Data)
			}
			assert.Equal(t, tt.text, rebuilt.String())
			assert.Equal(t, len(fragments), manifest.FragmentCount)
			for _, frag := range fragments {
				assert.LessOrEqual(t, frag.Size, tt.max)
			}
		})
	}
}

func TestSplit_TextPrefersWhitespaceBreaks(t *testing.T) {
	// Whitespace near the end of the chunk should win over the hard cut.
	text := strings.Repeat("alpha beta gamma delta ", 20)

	fragments, _ := Split([]byte(text), "text/plain", 100, "doc.txt", "t")

	require.Greater(t, len(fragments), 1)
	for _, frag := range fragments[:len(fragments)-1] {
		last := frag.Data[len(frag.Data)-1]
		assert.Equal(t, byte(' '), last)
	}
}

func TestSplit_TextRareWhitespaceKeepsHardCut(t *testing.T) {
	// One space early in the chunk is beyond the 20% look-back window, so
	// the hard cut must be kept instead of producing a tiny fragment.
	text := "ab " + strings.Repeat("z", 500)

	fragments, _ := Split([]byte(text), "text/plain", 100, "doc.txt", "t")

	require.Greater(t, len(fragments), 1)
	assert.Equal(t, 100, fragments[0].Size)
}

func TestSplit_TextRespectsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 200) // 2 bytes per rune

	fragments, _ := Split([]byte(text), "text/plain", 101, "doc.txt", "t")

	for _, frag := range fragments {
		assert.True(t, bytes.Equal(frag.Data, []byte(string([]rune(string(frag.Data))))),
			"fragment must be valid UTF-8")
	}
}

func TestSplit_MarkdownSectionBoundaries(t *testing.T) {
	var md strings.Builder
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&md, "## Chapter %d\n\n%s\n\n", i, strings.Repeat("content ", 10))
	}
	text := md.String()

	fragments, _ := Split([]byte(text), "text/markdown", 200, "guide.md", "t")

	require.Greater(t, len(fragments), 1)
	var rebuilt bytes.Buffer
	for _, frag := range fragments {
		rebuilt.Write(frag.Data)
	}
	assert.Equal(t, text, rebuilt.String())
	// Every fragment after the first opens on a section boundary.
	for _, frag := range fragments[1:] {
		assert.True(t, strings.HasPrefix(string(frag.Data), "## "),
			"fragment should start at a heading: %q", string(frag.Data[:20]))
	}
}

func TestSplit_MarkdownUsesMinimalHeadingLevel(t *testing.T) {
	text := "# Top\n\nintro\n\n### Sub\n\ndetail\n\n# Second\n\n" + strings.Repeat("body ", 30)

	fragments, _ := Split([]byte(text), "text/markdown", 60, "guide.md", "t")

	// Splits happen at '#' level only, '###' never opens a fragment.
	for _, frag := range fragments[1:] {
		s := string(frag.Data)
		if strings.HasPrefix(s, "#") {
			assert.False(t, strings.HasPrefix(s, "###"))
		}
	}
}

func TestSplit_MarkdownNoHeadingsFallsBackToText(t *testing.T) {
	text := strings.Repeat("plain paragraph text without any headings ", 20)

	fragments, _ := Split([]byte(text), "text/markdown", 100, "guide.md", "t")

	require.Greater(t, len(fragments), 1)
	var rebuilt bytes.Buffer
	for _, frag := range fragments {
		rebuilt.Write(frag.Data)
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestSplit_BinaryFixedSlicing(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 251)
	}

	fragments, manifest := Split(data, "application/octet-stream", 300, "blob.bin", "t")

	require.Len(t, fragments, 4)
	assert.Equal(t, 300, fragments[0].Size)
	assert.Equal(t, 300, fragments[1].Size)
	assert.Equal(t, 300, fragments[2].Size)
	assert.Equal(t, 100, fragments[3].Size)
	assert.Equal(t, 4, manifest.FragmentCount)

	var rebuilt bytes.Buffer
	for _, frag := range fragments {
		rebuilt.Write(frag.Data)
	}
	assert.Equal(t, data, rebuilt.Bytes())
}

func TestSplit_MalformedPDFFallsBackToByteSlicing(t *testing.T) {
	// Claims to be a PDF but has no page structure: the page-aware path
	// must degrade to byte slicing, not fail.
	data := []byte(strings.Repeat("not really a pdf ", 100))

	fragments, manifest := Split(data, "application/pdf", 400, "fake.pdf", "t")

	require.NotEmpty(t, fragments)
	assert.Equal(t, len(fragments), manifest.FragmentCount)
	var rebuilt bytes.Buffer
	for _, frag := range fragments {
		rebuilt.Write(frag.Data)
	}
	assert.Equal(t, data, rebuilt.Bytes())
	assert.Equal(t, "t/fake.p001.pdf", fragments[0].Key)
}

func TestSplit_KeyFormatAndOrdering(t *testing.T) {
	data := make([]byte, 2500)

	fragments, _ := Split(data, "application/octet-stream", 1000, "doc.pdf", "tenant")

	require.Len(t, fragments, 3)
	assert.Equal(t, "tenant/doc.p001.pdf", fragments[0].Key)
	assert.Equal(t, "tenant/doc.p002.pdf", fragments[1].Key)
	assert.Equal(t, "tenant/doc.p003.pdf", fragments[2].Key)
	for i := 1; i < len(fragments); i++ {
		assert.Less(t, fragments[i-1].Key, fragments[i].Key)
	}
}

func TestSplit_ManifestDescribesFragments(t *testing.T) {
	data := make([]byte, 2048)

	fragments, manifest := Split(data, "application/octet-stream", 1000, "blob.bin", "t")

	require.Equal(t, len(fragments), len(manifest.Fragments))
	for i, desc := range manifest.Fragments {
		assert.Equal(t, fragments[i].Key, desc.Key)
		assert.Equal(t, fragments[i].Size, desc.Size)
		assert.Equal(t, fragments[i].ContentType, desc.ContentType)
	}
}

func TestManifestKey(t *testing.T) {
	assert.Equal(t, "tenant/doc.manifest.json", ManifestKey("tenant", "doc.pdf"))
	assert.Equal(t, "t/notes.manifest.json", ManifestKey("t", "notes.txt"))
}
