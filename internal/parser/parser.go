// Package parser extracts raw text from document files. It is the
// extraction collaborator in front of the chunking pipeline: one file in,
// one raw text string out. Scanned pages and OCR are out of scope.
package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".pptx": true,
	".xlsx": true,
	".ods":  true,
	".md":   true,
	".txt":  true,
}

// Supported reports whether the file extension has an extractor.
func Supported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Extract returns the raw text of a document file. Callers treat any
// error as "zero chunks for this source", not a hard stop for a batch.
func Extract(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return extractPDF(filePath)
	case ".docx":
		return extractDOCX(filePath)
	case ".pptx":
		return extractPPTX(filePath)
	case ".xlsx":
		return extractXLSX(filePath)
	case ".ods":
		return extractODS(filePath)
	case ".md":
		return extractMarkdown(filePath)
	case ".txt":
		return extractText(filePath)
	default:
		return "", fmt.Errorf("unsupported file format: %s", ext)
	}
}

func extractPDF(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", fmt.Errorf("no text could be extracted from %s", filepath.Base(filePath))
	}
	return text.String(), nil
}

func extractDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	return stripTags(content), nil
}

func extractPPTX(filePath string) (string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	for _, file := range f.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		text.WriteString(extractRunsFromXML(string(data)))
		text.WriteString("\n")
	}
	return text.String(), nil
}

func extractXLSX(filePath string) (string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		text.WriteString(sheet.Name)
		text.WriteString("\n")
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String())
				text.WriteString("\t")
			}
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

func extractODS(filePath string) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		text.WriteString(sheetName)
		text.WriteString("\n")
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

func extractMarkdown(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(data, &buf); err != nil {
		return "", err
	}
	return stripTags(buf.String()), nil
}

func extractText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return html.UnescapeString(tagRe.ReplaceAllString(s, " "))
}

// extractRunsFromXML pulls the text runs (<a:t> elements) out of a slide's
// XML payload.
func extractRunsFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(html.UnescapeString(part[:endIdx]) + " ")
		}
	}
	return text.String()
}
