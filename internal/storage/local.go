package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/legal-assist-poc/server/internal/agent/model"
	errx "github.com/legal-assist-poc/server/internal/core/error"
	logx "github.com/legal-assist-poc/server/pkg/logger"
)

// LocalStore keeps one JSON file per analysis under dir.
type LocalStore struct {
	dir string
	now func() time.Time
	mu  sync.RWMutex
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, now: time.Now}, nil
}

func (s *LocalStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *LocalStore) Save(_ context.Context, rec *model.AnalysisRecord) error {
	if rec == nil {
		return errx.Validation(errors.New("record is nil"))
	}
	if err := ValidateID(rec.AnalysisID); err != nil {
		return errx.Validation(err)
	}

	stored := *rec
	stored.SavedAt = s.now().UTC()
	b, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, rec.AnalysisID+".*.tmp")
	if err != nil {
		return errx.WrapStorage(err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errx.WrapStorage(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errx.WrapStorage(err)
	}
	if err := os.Rename(tmp.Name(), s.path(rec.AnalysisID)); err != nil {
		os.Remove(tmp.Name())
		return errx.WrapStorage(err)
	}
	rec.SavedAt = stored.SavedAt
	return nil
}

func (s *LocalStore) Get(_ context.Context, id string) (*model.AnalysisRecord, error) {
	if err := ValidateID(id); err != nil {
		return nil, errx.NotFound(ErrNotFound)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(s.path(id))
}

func (s *LocalStore) read(path string) (*model.AnalysisRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errx.NotFound(ErrNotFound)
		}
		return nil, errx.WrapStorage(err)
	}
	var rec model.AnalysisRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, errx.WrapStorage(fmt.Errorf("decode %s: %w", filepath.Base(path), err))
	}
	return &rec, nil
}

func (s *LocalStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return errx.NotFound(ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errx.NotFound(ErrNotFound)
		}
		return errx.WrapStorage(err)
	}
	return nil
}

func (s *LocalStore) List(_ context.Context, f Filter) ([]*model.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errx.WrapStorage(err)
	}
	out := make([]*model.AnalysisRecord, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := s.read(filepath.Join(s.dir, e.Name()))
		if err != nil {
			// one corrupt file must not hide the rest
			logx.Warn().Err(err).Str("file", e.Name()).Msg("Skipping unreadable analysis record")
			continue
		}
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

var _ AnalysisStore = (*LocalStore)(nil)
