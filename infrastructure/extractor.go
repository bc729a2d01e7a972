package infrastructure

import (
	"bytes"
	"html"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nguyenthenguyen/docx"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"

	"resume-matcher/domain"
)

// Extractor converts raw file bytes of an admitted type to plain text.
// It is idempotent and side-effect-free beyond reading the input.
type Extractor interface {
	Extract(data []byte, filename string) (string, error)
}

type FileExtractor struct {
	logger *zap.Logger
}

func NewFileExtractor(logger *zap.Logger) *FileExtractor {
	return &FileExtractor{logger: logger}
}

func (e *FileExtractor) Extract(data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", &domain.ExtractionError{Filename: filename, Reason: "file is empty"}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return e.extractPlainText(data, filename)
	case ".pdf":
		return e.extractPDF(data, filename)
	case ".docx":
		return e.extractDOCX(data, filename)
	default:
		return "", &domain.ExtractionError{Filename: filename, Reason: "unsupported format"}
	}
}

func (e *FileExtractor) extractPlainText(data []byte, filename string) (string, error) {
	if !utf8.Valid(data) {
		return "", &domain.ExtractionError{Filename: filename, Reason: "file is not valid UTF-8 text"}
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", &domain.ExtractionError{Filename: filename, Reason: "file contains no text"}
	}
	return text, nil
}

func (e *FileExtractor) extractPDF(data []byte, filename string) (string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", &domain.ExtractionError{Filename: filename, Reason: "corrupt PDF", Err: err}
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", &domain.ExtractionError{Filename: filename, Reason: "unreadable PDF", Err: err}
	}
	if numPages == 0 {
		return "", &domain.ExtractionError{Filename: filename, Reason: "PDF has no pages"}
	}

	var textBuilder strings.Builder
	extractedAny := false

	// Pages that fail extraction are skipped; a single bad page should not
	// lose the rest of the resume.
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			e.logger.Debug("skipping PDF page", zap.String("filename", filename), zap.Int("page", i), zap.Error(err))
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			e.logger.Debug("skipping PDF page", zap.String("filename", filename), zap.Int("page", i), zap.Error(err))
			continue
		}
		pageText, err := ex.ExtractText()
		if err != nil || pageText == "" {
			continue
		}
		extractedAny = true
		textBuilder.WriteString(pageText)
		textBuilder.WriteString("\n\n")
	}

	if !extractedAny {
		return "", &domain.ExtractionError{Filename: filename, Reason: "no text could be extracted from any page"}
	}
	return strings.TrimSpace(textBuilder.String()), nil
}

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	docxTag          = regexp.MustCompile(`<[^>]+>`)
)

func (e *FileExtractor) extractDOCX(data []byte, filename string) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &domain.ExtractionError{Filename: filename, Reason: "corrupt DOCX", Err: err}
	}
	defer r.Close()

	content := r.Editable().GetContent()
	text := docxContentToText(content)
	if text == "" {
		return "", &domain.ExtractionError{Filename: filename, Reason: "DOCX contains no text"}
	}
	return text, nil
}

// docxContentToText flattens the document.xml body: paragraph boundaries
// become newlines, every other tag is dropped.
func docxContentToText(content string) string {
	content = docxParagraphEnd.ReplaceAllString(content, "\n")
	content = docxTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
