package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"document-chat/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Extractor turns a document file into plain text.
type Extractor interface {
	ExtractText(filePath string) (string, error)
}

type FileExtractor struct{}

func (FileExtractor) ExtractText(filePath string) (string, error) {
	return ExtractText(filePath)
}

// IsImage reports whether the file extension is one of the accepted image types.
func IsImage(filePath string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	return slices.Contains(models.AllowedImageExtensions, ext)
}

// ExtractText reads a non-image document and returns its text content.
func ExtractText(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	log.Debug().Str("file", filePath).Str("ext", ext).Msg("Extracting text")

	var (
		content string
		err     error
	)
	switch ext {
	case ".pdf":
		content, err = parsePDF(filePath)
	case ".docx":
		content, err = parseDOCX(filePath)
	case ".pptx":
		content, err = parsePPTX(filePath)
	case ".xlsx":
		content, err = parseXLSX(filePath)
	case ".ods":
		content, err = parseODS(filePath)
	case ".md", ".markdown":
		content, err = parseMarkdown(filePath)
	case ".txt":
		content, err = parseText(filePath)
	default:
		return "", fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func parsePDF(filePath string) (string, error) {
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

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) != "" {
			pages = append(pages, strings.TrimSpace(pageText))
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func parseDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	// GetContent returns the raw document.xml body
	return extractTextFromXML(r.Editable().GetContent(), "w:p", "w:t"), nil
}

func parsePPTX(filePath string) (string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var slides []string
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
		if slideText := extractTextFromXML(string(data), "a:p", "a:t"); slideText != "" {
			slides = append(slides, slideText)
		}
	}
	return strings.Join(slides, "\n\n"), nil
}

func parseXLSX(filePath string) (string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		text.WriteString(fmt.Sprintf("Sheet %s.\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			writeRow(&text, cells)
		}
	}
	return text.String(), nil
}

func parseODS(filePath string) (string, error) {
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
		text.WriteString(fmt.Sprintf("Sheet %s.\n", sheetName))
		for _, row := range rows {
			writeRow(&text, row)
		}
	}
	return text.String(), nil
}

// rows become one sentence each so the chunker keeps them intact
func writeRow(text *strings.Builder, cells []string) {
	row := strings.TrimSpace(strings.Join(cells, "\t"))
	if row == "" {
		return
	}
	text.WriteString(row)
	text.WriteString(".\n")
}

func parseMarkdown(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return markdownToText(data)
}

func parseText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// markdownToText walks the goldmark AST and keeps only the text segments,
// one line per block.
func markdownToText(source []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte(' ')
				}
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					line := lines.At(i)
					buf.Write(line.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		default:
			if !entering && n.Type() == ast.TypeBlock {
				buf.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// extractTextFromXML collects the contents of textTag elements, one line per
// paraTag element.
func extractTextFromXML(xmlContent, paraTag, textTag string) string {
	open := "<" + textTag
	closing := "</" + textTag + ">"

	var out strings.Builder
	for _, para := range strings.Split(xmlContent, "</"+paraTag+">") {
		var line strings.Builder
		rest := para
		for {
			idx := strings.Index(rest, open)
			if idx < 0 {
				break
			}
			rest = rest[idx+len(open):]
			// <w:t> or <w:t xml:space="preserve">, but not <w:tab/> or <w:tbl>
			if rest == "" || (rest[0] != '>' && rest[0] != ' ') {
				continue
			}
			start := strings.Index(rest, ">")
			end := strings.Index(rest, closing)
			if start < 0 || end < start {
				continue
			}
			line.WriteString(rest[start+1 : end])
			rest = rest[end+len(closing):]
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			out.WriteString(s)
			out.WriteByte('\n')
		}
	}
	return strings.TrimSpace(out.String())
}
