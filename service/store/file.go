package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nootey/walko/service/metrics"
)

// FileStore keeps artifacts as indented JSON under
// <root>/<scope>/<date>/<kind>/<wallet>.json.
type FileStore struct {
	root    string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFileStore creates a FileStore rooted at root. If metrics is nil, no metrics will be recorded.
func NewFileStore(root string, m *metrics.Metrics, logger *slog.Logger) *FileStore {
	return &FileStore{root: root, metrics: m, logger: logger}
}

// Path returns the file an artifact is stored in.
func (s *FileStore) Path(key Key) string {
	return filepath.Join(s.root, string(key.Scope), key.Date, string(key.Kind), key.Wallet+".json")
}

func (s *FileStore) Load(ctx context.Context, key Key, v any) (found bool, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordStoreOp("load", "file", time.Since(start).Seconds(), err)
		}
	}()

	if err := key.validate(); err != nil {
		return false, err
	}

	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}

	s.logger.DebugContext(ctx, "loaded artifact", "key", key.String())
	return true, nil
}

func (s *FileStore) Save(ctx context.Context, key Key, v any) (err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordStoreOp("save", "file", time.Since(start).Seconds(), err)
		}
	}()

	if err := key.validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temp file first so readers never see a partial artifact.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".walko-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	s.logger.InfoContext(ctx, "saved artifact", "key", key.String(), "path", path)
	return nil
}
