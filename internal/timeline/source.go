package timeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultMaxBytes is the artifact size ceiling used when none is configured.
const DefaultMaxBytes int64 = 50 << 20

var extensions = map[string]bool{
	".json":   true,
	".db":     true,
	".sqlite": true,
}

// ValidateFile checks an artifact's name and size before it is parsed.
func ValidateFile(name string, size, maxBytes int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !extensions[ext] {
		return fmt.Errorf("%w: %q", ErrUnsupportedExt, ext)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, size, maxBytes)
	}
	return nil
}

// LoadFile validates and loads an artifact from disk. JSON files are decoded
// directly; .db and .sqlite files are read as an extraction database.
func LoadFile(ctx context.Context, path string, maxBytes int64) (*Log, error) {
	ctx, span := otel.Tracer("strata/timeline").Start(ctx, "timeline.LoadFile")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	log, err := loadFile(ctx, path, maxBytes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("event_count", log.Len()))
	return log, nil
}

func loadFile(ctx context.Context, path string, maxBytes int64) (*Log, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnsupportedExt, path)
	}
	if err := ValidateFile(path, info.Size(), maxBytes); err != nil {
		return nil, err
	}

	if strings.ToLower(filepath.Ext(path)) != ".json" {
		return LoadSQLite(ctx, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
