package documents

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/legal-assist-poc/server/internal/agent/model"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrInvalidSource     = errors.New("invalid document source")
)

const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"
	FormatTXT  = "txt"
)

// Document is extracted plain text plus format-specific metadata.
type Document struct {
	Content  string
	Metadata model.DocumentMetadata
}

// LocalFileSource reads contracts and knowledge-base files from disk.
type LocalFileSource struct {
	formats []string
}

func NewLocalFileSource() *LocalFileSource {
	return &LocalFileSource{formats: []string{FormatPDF, FormatDOCX, FormatTXT}}
}

// SupportedFormats lists the accepted extensions without the dot.
func (s *LocalFileSource) SupportedFormats() []string {
	out := make([]string, len(s.formats))
	copy(out, s.formats)
	return out
}

// Supports reports whether the file name has an accepted extension.
func (s *LocalFileSource) Supports(name string) bool {
	ext := formatOf(name)
	for _, f := range s.formats {
		if f == ext {
			return true
		}
	}
	return false
}

// Validate checks that path is an existing regular file of a supported format.
func (s *LocalFileSource) Validate(path string) error {
	if !s.Supports(path) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSource, path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a file", ErrInvalidSource, path)
	}
	return nil
}

// Load extracts the text of the file at path.
func (s *LocalFileSource) Load(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.Validate(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSource, path, err)
	}

	format := formatOf(path)
	doc := &Document{Metadata: model.DocumentMetadata{
		Filename:   filepath.Base(path),
		FileType:   format,
		SourcePath: path,
	}}

	switch format {
	case FormatPDF:
		text, pages, err := extractPDF(data)
		if err != nil {
			return nil, fmt.Errorf("error processing PDF %s: %w", path, err)
		}
		doc.Content, doc.Metadata.Pages = text, pages
	case FormatDOCX:
		text, paragraphs, err := extractDOCX(data)
		if err != nil {
			return nil, fmt.Errorf("error processing DOCX %s: %w", path, err)
		}
		doc.Content, doc.Metadata.Paragraphs = text, paragraphs
	case FormatTXT:
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("error processing TXT %s: not valid UTF-8", path)
		}
		doc.Content = string(data)
		doc.Metadata.Characters = utf8.RuneCount(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return doc, nil
}

func formatOf(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

func extractPDF(data []byte) (string, int, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", 0, err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", 0, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(buf.String()), pdfReader.NumPage(), nil
}

// extractDOCX returns one line per w:p paragraph, empty paragraphs included,
// and the paragraph count.
func extractDOCX(data []byte) (string, int, error) {
	if len(data) == 0 {
		return "", 0, errors.New("empty docx data")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", 0, errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br":
				current.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return strings.TrimSpace(strings.Join(paragraphs, "\n")), len(paragraphs), nil
}
