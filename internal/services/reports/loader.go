package reports

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/models"
)

// maxReportBytes bounds the size of a report file
const maxReportBytes = 5 << 20

// ErrNotFound is returned when the report file does not exist
var ErrNotFound = errors.New("report not found")

// reportExtensions lists the file types Load accepts
var reportExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
}

// Loader reads earnings reports from disk.
// Plain text and markdown are returned as is; HTML is converted to markdown.
type Loader struct {
	logger   arbor.ILogger
	confined bool
	baseDir  string
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithBaseDir confines Load to files under dir. Relative paths resolve
// against dir. An empty dir rejects every path.
func WithBaseDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.confined = true
		l.baseDir = strings.TrimSpace(dir)
	}
}

// NewLoader creates a report loader
func NewLoader(logger arbor.ILogger, opts ...LoaderOption) *Loader {
	l := &Loader{
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the report text at path
func (l *Loader) Load(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &models.InvalidInputError{Field: "report_path", Reason: "must not be empty"}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !reportExtensions[ext] {
		return "", &models.InvalidInputError{Field: "report_path", Reason: fmt.Sprintf("unsupported file type %q, expected .txt, .md, .html or .htm", ext)}
	}

	if l.confined {
		resolved, err := l.resolve(path)
		if err != nil {
			l.logger.Warn().Str("path", path).Err(err).Msg("Report path rejected")
			return "", err
		}
		path = resolved
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return "", fmt.Errorf("failed to stat report: %w", err)
	}
	if info.IsDir() {
		return "", &models.InvalidInputError{Field: "report_path", Reason: "is a directory"}
	}
	if info.Size() > maxReportBytes {
		return "", &models.InvalidInputError{Field: "report_path", Reason: fmt.Sprintf("file exceeds %d bytes", maxReportBytes)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}

	text := string(data)
	switch ext {
	case ".html", ".htm":
		text = l.HTMLToMarkdown(text)
	}

	if strings.TrimSpace(text) == "" {
		return "", &models.InvalidInputError{Field: "report_path", Reason: "report is empty"}
	}

	l.logger.Debug().
		Str("path", path).
		Int("length", len(text)).
		Msg("Report loaded")

	return text, nil
}

// resolve maps path into the base directory and rejects anything that lands
// outside it, following symlinks when the target exists
func (l *Loader) resolve(path string) (string, error) {
	outside := &models.InvalidInputError{Field: "report_path", Reason: "must be inside the reports directory"}

	if l.baseDir == "" {
		return "", &models.InvalidInputError{Field: "report_path", Reason: "loading reports by path is disabled"}
	}

	base, err := filepath.Abs(l.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve reports directory: %w", err)
	}
	realBase := base
	if resolved, err := filepath.EvalSymlinks(base); err == nil {
		realBase = resolved
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	target = filepath.Clean(target)

	if !within(base, target) && !within(realBase, target) {
		return "", outside
	}

	// A symlink inside the directory may still point elsewhere
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		if !within(realBase, resolved) {
			return "", outside
		}
		target = resolved
	}

	return target, nil
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// HTMLToMarkdown converts an HTML report to markdown, stripping tags when
// conversion fails or yields nothing
func (l *Loader) HTMLToMarkdown(html string) string {
	if html == "" {
		return ""
	}

	converter := md.NewConverter("", true, nil)
	converted, err := converter.ConvertString(html)
	if err != nil {
		l.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, stripping tags")
		return stripHTMLTags(html)
	}

	if strings.TrimSpace(converted) == "" {
		l.logger.Warn().
			Int("html_length", len(html)).
			Msg("HTML to markdown conversion produced empty output, stripping tags")
		return stripHTMLTags(html)
	}

	return converted
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
	entities     = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&nbsp;", " ",
	)
)

func stripHTMLTags(html string) string {
	stripped := tagPattern.ReplaceAllString(html, " ")
	cleaned := spacePattern.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(entities.Replace(cleaned))
}
