package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
)

// Document subtypes with a dedicated parser.
const (
	SubtypePlain    = "plain"
	SubtypeMarkdown = "markdown"
	SubtypeCSV      = "csv"
	SubtypePDF      = "pdf"
	SubtypeMSWord   = "msword"
	SubtypeDOCX     = "vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ObjectFetcher reads a whole stored object.
type ObjectFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Captioner describes an asset no parser handles, typically with a vision
// model.
type Captioner interface {
	Caption(ctx context.Context, url, mimeType string) (string, error)
}

// Extractor turns stored assets into text by MIME subtype.
type Extractor struct {
	fetcher   ObjectFetcher
	captioner Captioner
	logger    *slog.Logger
}

// NewExtractor creates an Extractor. captioner may be nil, in which case
// assets without a parser fail with ErrCaptionFailed.
func NewExtractor(fetcher ObjectFetcher, captioner Captioner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{fetcher: fetcher, captioner: captioner, logger: logger}
}

// Subtype returns the lowercased part of mimeType after "/", without
// parameters.
func Subtype(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	_, sub, ok := strings.Cut(strings.ToLower(mediaType), "/")
	if !ok {
		return ""
	}
	return sub
}

// HasParser reports whether the subtype is parsed locally rather than
// captioned.
func HasParser(subtype string) bool {
	switch subtype {
	case SubtypePlain, SubtypeMarkdown, SubtypeCSV, SubtypePDF, SubtypeMSWord, SubtypeDOCX:
		return true
	}
	return false
}

// Extract returns the text of the asset at url.
func (e *Extractor) Extract(ctx context.Context, url, mimeType string) (string, error) {
	subtype := Subtype(mimeType)
	if !HasParser(subtype) {
		return e.caption(ctx, url, mimeType)
	}

	data, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	e.logger.DebugContext(ctx, "parsing asset", "subtype", subtype, "bytes", len(data))

	switch subtype {
	case SubtypePDF:
		return PDFText(data)
	case SubtypeDOCX:
		return DOCXText(data)
	case SubtypeMSWord:
		return MSWordText(data)
	default:
		return PlainText(data), nil
	}
}

func (e *Extractor) caption(ctx context.Context, url, mimeType string) (string, error) {
	if e.captioner == nil {
		return "", fmt.Errorf("%w: no captioner for %q", ErrCaptionFailed, mimeType)
	}
	text, err := e.captioner.Caption(ctx, url, mimeType)
	if err != nil {
		if errors.Is(err, ErrCaptionFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrCaptionFailed, err)
	}
	return text, nil
}
