package document

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/lucidchat/ctxengine/pkg/textextract"
)

type TextExtractor interface {
	Extract(ctx context.Context, data io.ReaderAt, size int64, fileType string) (*textextract.ExtractedText, error)
	SupportedTypes() []string
}

type extractor struct {
	ocr *OCRService
}

func NewTextExtractor() TextExtractor {
	return &extractor{
		ocr: NewOCRService(),
	}
}

func (e *extractor) Extract(ctx context.Context, data io.ReaderAt, size int64, fileType string) (*textextract.ExtractedText, error) {
	result, err := textextract.Extract(data, size, fileType)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	// A PDF with empty or minimal extracted text is returned as extracted:
	// no OCR pass runs here, even when the OCR service is available.
	if len(result.Content) < 50 && (fileType == ".pdf" || fileType == "pdf") && e.ocr.IsAvailable() {
		_ = ctx
	}

	return result, nil
}

func (e *extractor) SupportedTypes() []string {
	return textextract.SupportedTypes()
}

// ReaderAtFromBytes creates an io.ReaderAt from a byte slice.
func ReaderAtFromBytes(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
