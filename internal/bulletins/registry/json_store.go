package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/2beens/bulletinboard/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

var _ Store = (*JSONFileStore)(nil)

// JSONFileStore keeps the registry in a single JSON document on disk
type JSONFileStore struct {
	path string
}

func NewJSONFileStore(path string) (*JSONFileStore, error) {
	if path == "" {
		return nil, errors.New("registry file path cannot be empty")
	}
	return &JSONFileStore{
		path: path,
	}, nil
}

func (s *JSONFileStore) Path() string {
	return s.path
}

func (s *JSONFileStore) Load(ctx context.Context) (_ Registry, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "registry.json.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("registry.path", s.path))

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Registry{}, nil
		}
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return Registry{}, nil
	}

	raw := map[string]string{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal registry file: %w", err)
	}

	return fromRaw(raw, s.path), nil
}

// Save writes into a temp file next to the target and renames it over the
// target, so concurrent readers see either the old or the new document.
func (s *JSONFileStore) Save(ctx context.Context, reg Registry) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "registry.json.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("registry.path", s.path))

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp registry file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp registry file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp registry file: %w", err)
	}
	if err = os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("chmod temp registry file: %w", err)
	}

	if err = os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace registry file: %w", err)
	}

	return nil
}
