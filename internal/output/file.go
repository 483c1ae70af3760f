package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"
)

// lockRetry is how often WriteReportFile retries a held report lock.
const lockRetry = 50 * time.Millisecond

// NewRunID returns a lexically sortable identifier for one run.
func NewRunID() string {
	return ulid.Make().String()
}

// Format selects a report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// FormatFor picks the report format from a file extension, defaulting to JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".html", ".htm":
		return FormatHTML
	case ".txt", ".log":
		return FormatText
	default:
		return FormatJSON
	}
}

// WriteReportFile writes r to path while holding an advisory lock on
// path+".lock", so concurrent runs sharing an output file never interleave.
// An empty format is picked from the extension.
func WriteReportFile(ctx context.Context, path string, format Format, r Report) error {
	if format == "" {
		format = FormatFor(path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("lock report file: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock report file %s: not acquired", path)
	}
	defer func() { _ = lock.Unlock() }()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatYAML:
		err = PrintYAMLReport(f, r)
	case FormatHTML:
		err = GenerateHTMLReport(f, r)
	case FormatText:
		PrintReport(f, r)
	default:
		err = PrintJSONReport(f, r)
	}
	if err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return f.Sync()
}
