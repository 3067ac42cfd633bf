package splitter

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPage describes one page of a generated document. Width doubles as a
// per-page marker so tests can verify page order after splitting.
type testPage struct {
	content []byte
	filter  string // "/FlateDecode" for pre-compressed streams, empty for raw
	width   int
}

// buildTestPDF assembles a minimal but fully valid multi-page PDF with one
// content stream per page and the xref offsets computed from the actual
// byte layout.
func buildTestPDF(t *testing.T, pages []testPage) []byte {
	t.Helper()

	var buf bytes.Buffer
	size := 3 + 2*len(pages) // obj 0 + catalog + pages + (page, content) per page
	offsets := make([]int, size)

	buf.WriteString("%PDF-1.4\n")

	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+2*i))
	}
	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))

	for i, page := range pages {
		pageNum := 3 + 2*i
		contentNum := pageNum + 1
		writeObj(pageNum, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 792] /Resources << >> /Contents %d 0 R >>",
			page.width, contentNum))

		offsets[contentNum] = buf.Len()
		filter := ""
		if page.filter != "" {
			filter = " /Filter " + page.filter
		}
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Length %d%s >>\nstream\n", contentNum, len(page.content), filter)
		buf.Write(page.content)
		buf.WriteString("\nendstream\nendobj\n")
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for num := 1; num < size; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xrefOffset)
	return buf.Bytes()
}

// fillerStream returns a harmless, highly compressible content stream.
func fillerStream(n int) []byte {
	return bytes.Repeat([]byte("q Q\n"), n)
}

// opaqueStream returns flate-encoded random bytes: incompressible payload
// whose size survives any rewrite of the document.
func opaqueStream(t *testing.T, n int, seed int64) []byte {
	t.Helper()
	raw := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(raw)
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func pdfPageCount(t *testing.T, data []byte) int {
	t.Helper()
	count, err := api.PageCount(bytes.NewReader(data), pdfmodel.NewDefaultConfiguration())
	require.NoError(t, err)
	return count
}

func pdfPageWidths(t *testing.T, data []byte) []int {
	t.Helper()
	dims, err := api.PageDims(bytes.NewReader(data), pdfmodel.NewDefaultConfiguration())
	require.NoError(t, err)
	widths := make([]int, 0, len(dims))
	for _, dim := range dims {
		widths = append(widths, int(dim.Width+0.5))
	}
	return widths
}

func TestSplit_PDFGroupsPagesByEstimatedSize(t *testing.T) {
	// Twelve uniform pages; the cap is tuned to five pages per fragment, so
	// the split must come out as 5 + 5 + 2.
	pages := make([]testPage, 12)
	for i := range pages {
		pages[i] = testPage{content: fillerStream(750), width: 101 + i}
	}
	data := buildTestPDF(t, pages)

	avg := len(data) / 12
	max := avg*5 + (avg*9)/10 // floor(max/avg) == 5, with headroom per group

	fragments, manifest := Split(data, "application/pdf", max, "codex.pdf", "t")

	require.Len(t, fragments, 3)
	assert.Equal(t, 3, manifest.FragmentCount)
	assert.Equal(t, "t/codex.p001.pdf", fragments[0].Key)
	assert.Equal(t, "t/codex.p002.pdf", fragments[1].Key)
	assert.Equal(t, "t/codex.p003.pdf", fragments[2].Key)

	assert.Equal(t, 5, pdfPageCount(t, fragments[0].Data))
	assert.Equal(t, 5, pdfPageCount(t, fragments[1].Data))
	assert.Equal(t, 2, pdfPageCount(t, fragments[2].Data))

	// Page order is preserved across fragments: widths act as page markers.
	assert.Equal(t, []int{101, 102, 103, 104, 105}, pdfPageWidths(t, fragments[0].Data))
	assert.Equal(t, []int{106, 107, 108, 109, 110}, pdfPageWidths(t, fragments[1].Data))
	assert.Equal(t, []int{111, 112}, pdfPageWidths(t, fragments[2].Data))
}

func TestSplit_PDFOversizedGroupIsResplit(t *testing.T) {
	// Two heavy pages and one light one. The cap admits two pages per
	// fragment by the size estimate, but the rendered two-page group comes
	// out over the cap and must be halved down to single pages.
	pages := []testPage{
		{content: opaqueStream(t, 6000, 1), filter: "/FlateDecode", width: 201},
		{content: opaqueStream(t, 6000, 2), filter: "/FlateDecode", width: 202},
		{content: fillerStream(25), width: 203},
	}
	data := buildTestPDF(t, pages)

	avg := len(data) / 3
	max := avg*2 + avg/2 // floor(max/avg) == 2

	fragments, _ := Split(data, "application/pdf", max, "atlas.pdf", "t")

	require.Len(t, fragments, 3)
	for i, frag := range fragments {
		assert.Equal(t, 1, pdfPageCount(t, frag.Data), "fragment %d", i)
	}
	assert.Equal(t, []int{201}, pdfPageWidths(t, fragments[0].Data))
	assert.Equal(t, []int{202}, pdfPageWidths(t, fragments[1].Data))
	assert.Equal(t, []int{203}, pdfPageWidths(t, fragments[2].Data))
}

func TestSplit_PDFSinglePageNeverSplit(t *testing.T) {
	pages := []testPage{
		{content: opaqueStream(t, 8000, 3), filter: "/FlateDecode", width: 301},
	}
	data := buildTestPDF(t, pages)

	fragments, _ := Split(data, "application/pdf", 2000, "poster.pdf", "t")

	require.Len(t, fragments, 1)
	assert.Equal(t, 1, pdfPageCount(t, fragments[0].Data))
	assert.Greater(t, fragments[0].Size, 2000, "an indivisible page may exceed the cap")
}

func TestKeyGenerator_ResetRestartsNumbering(t *testing.T) {
	keys := newKeyGenerator("t", "doc.pdf")
	assert.Equal(t, "t/doc.p001.pdf", keys.next())
	assert.Equal(t, "t/doc.p002.pdf", keys.next())

	keys.resetTo(0)
	assert.Equal(t, "t/doc.p001.pdf", keys.next(), "fallback numbering restarts from scratch")
}
