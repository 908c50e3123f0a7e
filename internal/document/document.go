// Package document turns uploaded files into plain text for classification.
package document

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
)

var (
	ErrNotPDF = errors.New("file is not a PDF document")
	ErrNoText = errors.New("no text could be extracted from the document")
)

var pdfMagic = []byte("%PDF-")

// Extractor pulls page text out of PDF uploads.
type Extractor struct {
	pdf parser.Parser
}

func NewExtractor(ctx context.Context) (*Extractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	if err != nil {
		return nil, fmt.Errorf("init pdf parser: %w", err)
	}
	return &Extractor{pdf: p}, nil
}

// ExtractPDF returns the text of every page joined by a single space.
func (e *Extractor) ExtractPDF(ctx context.Context, r io.Reader) (string, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(pdfMagic))
	if err != nil || !bytes.Equal(head, pdfMagic) {
		return "", ErrNotPDF
	}
	docs, err := e.pdf.Parse(ctx, br)
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	text := joinPages(docs, " ")
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

func joinPages(docs []*schema.Document, sep string) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if content := strings.TrimSpace(doc.Content); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, sep)
}

// Loader reads local files of any supported type, picking a parser by
// extension and falling back to plain text.
type Loader struct {
	loader *file.FileLoader
}

func NewLoader(ctx context.Context) (*Loader, error) {
	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	if err != nil {
		return nil, fmt.Errorf("init pdf parser: %w", err)
	}
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		Parsers:        map[string]parser.Parser{".pdf": pdfParser},
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init ext parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &Loader{loader: loader}, nil
}

// LoadText returns the text content of the file at path.
func (l *Loader) LoadText(ctx context.Context, path string) (string, error) {
	docs, err := l.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return "", fmt.Errorf("load file: %w", err)
	}
	text := joinPages(docs, " ")
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
