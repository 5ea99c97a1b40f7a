package documents

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

// pageCount returns the number of pages in a PDF, or 0 when data is not a
// readable PDF.
func pageCount(data []byte) (n int) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0
	}
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}
