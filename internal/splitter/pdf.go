package splitter

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
)

// splitPDF groups pages into fragments whose estimated size fits the cap.
// A group that still comes out oversized is re-split down to single pages;
// a single page is never split further, its fragment may exceed the cap.
// Any structural failure degrades to byte slicing.
func splitPDF(data []byte, maxFragmentSize int, contentType string, keys *keyGenerator) (fragments []Fragment) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("page-aware split panicked, falling back to byte slicing: %v", r)
			fragments = splitBytes(data, maxFragmentSize, contentType, keys.resetTo(0))
		}
	}()

	conf := pdfmodel.NewDefaultConfiguration()
	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil || pageCount <= 0 {
		log.Warnf("cannot determine page count, falling back to byte slicing: %v", err)
		return splitBytes(data, maxFragmentSize, contentType, keys)
	}

	avgPageSize := len(data) / pageCount
	if avgPageSize == 0 {
		avgPageSize = 1
	}
	pagesPerFragment := maxFragmentSize / avgPageSize
	if pagesPerFragment < 1 {
		pagesPerFragment = 1
	}

	for start := 1; start <= pageCount; start += pagesPerFragment {
		end := start + pagesPerFragment - 1
		if end > pageCount {
			end = pageCount
		}
		groups, err := extractPageGroup(data, start, end, maxFragmentSize, conf)
		if err != nil {
			log.Warnf("page extraction failed for pages %d-%d, falling back to byte slicing: %v", start, end, err)
			return splitBytes(data, maxFragmentSize, contentType, keys.resetTo(0))
		}
		for _, group := range groups {
			fragments = append(fragments, keys.fragment(group, contentType))
		}
	}
	return fragments
}

// extractPageGroup renders pages [start, end] as a standalone document. If
// the result exceeds the cap and spans more than one page, the range is
// halved recursively until each piece fits or is a single page.
func extractPageGroup(data []byte, start, end, maxFragmentSize int, conf *pdfmodel.Configuration) ([][]byte, error) {
	var buf bytes.Buffer
	selection := []string{fmt.Sprintf("%d-%d", start, end)}
	if err := api.Trim(bytes.NewReader(data), &buf, selection, conf); err != nil {
		return nil, err
	}

	if buf.Len() <= maxFragmentSize || start == end {
		return [][]byte{buf.Bytes()}, nil
	}

	mid := start + (end-start)/2
	left, err := extractPageGroup(data, start, mid, maxFragmentSize, conf)
	if err != nil {
		return nil, err
	}
	right, err := extractPageGroup(data, mid+1, end, maxFragmentSize, conf)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

// resetTo rewinds the key sequence so a fallback strategy restarts its
// numbering from scratch.
func (g *keyGenerator) resetTo(seq int) *keyGenerator {
	g.seq = seq
	return g
}
