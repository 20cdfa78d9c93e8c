package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrNoConverter     = errors.New("pdf conversion is not configured")
)

type DoclingResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
}

// Converter turns uploaded or dropped files into plain corpus text. Text and
// markdown files are read as is; PDFs are cropped and sent to a docling
// server for markdown conversion.
type Converter struct {
	doclingURL string
	margins    PageMargins
	client     *http.Client
	logger     *slog.Logger
}

type ConverterConfig struct {
	DoclingURL string
	CropTop    float64
	CropBottom float64
	Timeout    time.Duration
}

func NewConverter(cfg ConverterConfig, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Converter{
		doclingURL: strings.TrimSuffix(cfg.DoclingURL, "/"),
		margins:    PageMargins{Top: cfg.CropTop, Bottom: cfg.CropBottom},
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "converter"),
	}
}

// Supported reports whether name has an extension the converter accepts.
func (c *Converter) Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".markdown":
		return true
	case ".pdf":
		return c.doclingURL != ""
	}
	return false
}

// ToText reads the file at path and returns its text content.
func (c *Converter) ToText(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ".pdf":
		return c.pdfToText(ctx, path)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
}

func (c *Converter) pdfToText(ctx context.Context, path string) (string, error) {
	if c.doclingURL == "" {
		return "", ErrNoConverter
	}

	src, release, err := c.margins.Crop(path)
	if err != nil {
		return "", err
	}
	defer release()

	start := time.Now()
	md, err := c.convertPDFToMD(ctx, src)
	if err != nil {
		return "", err
	}
	c.logger.Info("pdf converted", "file", filepath.Base(path), "took", time.Since(start))
	return CleanMarkdown(md), nil
}

func (c *Converter) convertPDFToMD(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("files", filepath.Base(filePath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.doclingURL+"/v1/convert/file", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("docling request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("docling error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var d DoclingResponse
	if err := json.Unmarshal(body, &d); err != nil {
		return "", fmt.Errorf("failed to unmarshal docling response: %w", err)
	}
	return d.Document.MdContent, nil
}

var (
	imgRegex       = regexp.MustCompile(`!\[[^\]]*\]\(data:image\/[a-zA-Z]+;base64,[^)]+\)`)
	blankRunsRegex = regexp.MustCompile(`\n{3,}`)
)

// CleanMarkdown drops inline base64 images and collapses runs of blank lines.
func CleanMarkdown(md string) string {
	md = imgRegex.ReplaceAllString(md, "")
	md = blankRunsRegex.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}
