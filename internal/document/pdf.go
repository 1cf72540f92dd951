package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser PDF文档解析器
// 优先使用ledongthuc/pdf提取文本，失败或为空时回退到pdfcpu的内容流提取
type PDFParser struct{}

// NewPDFParser 创建一个新的PDF解析器
func NewPDFParser() Parser {
	return &PDFParser{}
}

// Parse 解析PDF文件并提取其文本内容
func (p *PDFParser) Parse(filePath string) (string, error) {
	text, plainErr := extractPlainText(filePath)
	if plainErr == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text), nil
	}

	text, err := extractContentStreams(filePath)
	if err != nil {
		if plainErr != nil {
			return "", fmt.Errorf("failed to extract text from PDF: %v; fallback: %w", plainErr, err)
		}
		return "", err
	}
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// ParseReader 将Reader内容写入临时文件后解析
func (p *PDFParser) ParseReader(r io.Reader, filename string) (string, error) {
	tmp, err := os.CreateTemp("", "esg-report-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to buffer %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to buffer %s: %w", filename, err)
	}

	return p.Parse(tmp.Name())
}

// extractPlainText 使用ledongthuc/pdf获取页面纯文本
func extractPlainText(filePath string) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	b, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract plain text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(b); err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return buf.String(), nil
}

// extractContentStreams 使用pdfcpu导出每页内容流，再从中取出字符串操作数
func extractContentStreams(filePath string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(filePath, tmpDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract content from PDF: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return "", fmt.Errorf("failed to read extracted content dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var pages []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tmpDir, e.Name()))
		if err != nil {
			continue
		}
		if page := textFromContentStream(data); page != "" {
			pages = append(pages, page)
		}
	}
	return strings.TrimSpace(strings.Join(pages, "\n\n")), nil
}

// textFromContentStream 取出内容流中的字面量字符串
// 每个文本对象(BT..ET)输出为一行
func textFromContentStream(data []byte) string {
	var out, line strings.Builder
	flush := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
			out.WriteString(s)
		}
		line.Reset()
	}

	for i := 0; i < len(data); i++ {
		switch {
		case data[i] == '(':
			s, next := readLiteral(data, i)
			line.WriteString(s)
			i = next
		case data[i] == 'E' && i+1 < len(data) && data[i+1] == 'T' && isDelimiter(data, i-1) && isDelimiter(data, i+2):
			flush()
			i++
		}
	}
	flush()
	return out.String()
}

// readLiteral 读取从start开始的PDF字面量字符串，返回内容与结束位置
func readLiteral(data []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 0
	for i := start; i < len(data); i++ {
		c := data[i]
		switch c {
		case '\\':
			if i+1 < len(data) {
				i++
				switch data[i] {
				case 'n':
					sb.WriteByte('\n')
				case 'r', 't':
					sb.WriteByte(' ')
				default:
					sb.WriteByte(data[i])
				}
			}
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), len(data) - 1
}

func isDelimiter(data []byte, i int) bool {
	if i < 0 || i >= len(data) {
		return true
	}
	switch data[i] {
	case ' ', '\n', '\r', '\t':
		return true
	}
	return false
}
