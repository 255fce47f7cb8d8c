package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/legal-assist-poc/server/internal/agent/graph"
	"github.com/legal-assist-poc/server/internal/agent/model"
	errx "github.com/legal-assist-poc/server/internal/core/error"
	"github.com/legal-assist-poc/server/internal/documents"
	"github.com/legal-assist-poc/server/internal/storage"
	logx "github.com/legal-assist-poc/server/pkg/logger"
	"github.com/legal-assist-poc/server/pkg/metrics"
)

// Service runs contract analyses in the background and serves their results.
type Service struct {
	runner    graph.AnalysisRunner
	store     storage.AnalysisStore
	tracker   *ProgressTracker
	source    *documents.LocalFileSource
	uploadDir string

	wg sync.WaitGroup
}

type ServiceConfig struct {
	Runner    graph.AnalysisRunner
	Store     storage.AnalysisStore
	Tracker   *ProgressTracker
	Source    *documents.LocalFileSource
	UploadDir string
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Runner == nil {
		return nil, errors.New("analysis runner is nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("analysis store is nil")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NewProgressTracker()
	}
	if cfg.Source == nil {
		cfg.Source = documents.NewLocalFileSource()
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", cfg.UploadDir, err)
	}
	return &Service{
		runner:    cfg.Runner,
		store:     cfg.Store,
		tracker:   cfg.Tracker,
		source:    cfg.Source,
		uploadDir: cfg.UploadDir,
	}, nil
}

// Upload stores the contract, extracts its text and starts an analysis job.
// Rejections happen before any job exists and carry a 400 status.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", errx.Validation(errors.New("missing file name"))
	}
	if !s.source.Supports(name) {
		return "", errx.Validation(fmt.Errorf("%w: only %s files are accepted",
			documents.ErrUnsupportedFormat, strings.Join(s.source.SupportedFormats(), ", ")))
	}

	id := uuid.NewString()
	path := filepath.Join(s.uploadDir, id+"_"+name)
	if err := writeFile(path, r); err != nil {
		return "", err
	}

	doc, err := s.source.Load(ctx, path)
	if err != nil {
		os.Remove(path)
		return "", errx.Validation(err)
	}

	s.submit(ctx, id, doc)
	return id, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write upload %s: %w", path, err)
	}
	return f.Close()
}

func (s *Service) submit(ctx context.Context, id string, doc *documents.Document) {
	s.tracker.Start(id)
	metrics.AnalysisJobsActive.Inc()

	// the job outlives the request that started it
	jobCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer metrics.AnalysisJobsActive.Dec()
		s.run(jobCtx, id, doc)
	}()
}

func (s *Service) run(ctx context.Context, id string, doc *documents.Document) {
	log := logx.With().Str("analysis_id", id).Str("filename", doc.Metadata.Filename).Logger()
	log.Info().Msg("Starting contract analysis")

	state := model.AnalysisState{
		AnalysisID:       id,
		DocumentContent:  doc.Content,
		DocumentMetadata: doc.Metadata,
		CurrentStep:      model.StepQueued,
	}

	out, err := s.runner.Run(ctx, state)
	if err != nil {
		out.Fail(fmt.Sprintf("Analysis failed: %v", err))
	}

	status := StatusCompleted
	if out.Error != "" {
		status = StatusFailed
	}
	if err := s.store.Save(ctx, model.RecordFromState(out)); err != nil {
		log.Error().Err(err).Msg("Failed to save analysis")
		status = StatusFailed
	}

	s.tracker.Finish(id, status, out.CurrentStep)
	metrics.AnalysisJobs.WithLabelValues(string(status)).Inc()

	ev := log.Info()
	if status == StatusFailed {
		ev = log.Warn().Str("error", out.Error)
	}
	ev.Str("status", string(status)).Str("current_step", out.CurrentStep).Msg("Contract analysis finished")
}

// Wait blocks until every running job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Status reports the progress of a job started by this process.
func (s *Service) Status(id string) (Progress, error) {
	p, ok := s.tracker.Get(id)
	if !ok {
		return Progress{}, errx.NotFound(fmt.Errorf("analysis %s: %w", id, storage.ErrNotFound))
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f storage.Filter) ([]*model.AnalysisRecord, error) {
	return s.store.List(ctx, f)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.tracker.Remove(id)
	return nil
}
