package analysis

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legal-assist-poc/server/internal/agent/model"
	errx "github.com/legal-assist-poc/server/internal/core/error"
	"github.com/legal-assist-poc/server/internal/storage"
)

type runnerFunc func(ctx context.Context, s model.AnalysisState) (model.AnalysisState, error)

func (f runnerFunc) Run(ctx context.Context, s model.AnalysisState) (model.AnalysisState, error) {
	return f(ctx, s)
}

func completingRunner(tracker *ProgressTracker) runnerFunc {
	return func(_ context.Context, s model.AnalysisState) (model.AnalysisState, error) {
		tracker.Step(s.AnalysisID, model.StepRulesLoaded, 10)
		s.ExtractedClauses = &model.ExtractedClauses{TerminationClause: "90 days"}
		s.RiskAssessment = &model.RiskAssessment{OverallRisk: model.RiskLow, RiskScore: 2, RedFlags: []string{}}
		s.Summary = "Looks fine"
		s.AnalysisComplete = true
		s.CurrentStep = model.StepComplete
		return s, nil
	}
}

func newTestService(t *testing.T, runner func(*ProgressTracker) runnerFunc) (*Service, storage.AnalysisStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(filepath.Join(dir, "data"))
	require.NoError(t, err)
	tracker := NewProgressTracker()
	uploads := filepath.Join(dir, "uploads")

	svc, err := NewService(ServiceConfig{
		Runner:    runner(tracker),
		Store:     store,
		Tracker:   tracker,
		UploadDir: uploads,
	})
	require.NoError(t, err)
	return svc, store, uploads
}

func TestUploadRunsJobToCompletion(t *testing.T) {
	ctx := context.Background()
	svc, _, uploads := newTestService(t, completingRunner)

	id, err := svc.Upload(ctx, "contract.txt", strings.NewReader("This agreement may be terminated with 90 days notice."))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	svc.Wait()

	p, err := svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, Progress{Status: StatusCompleted, Progress: 100, CurrentStep: model.StepComplete}, p)

	rec, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.AnalysisID)
	assert.Equal(t, "txt", rec.DocumentMetadata.FileType)
	assert.True(t, rec.AnalysisComplete)
	assert.False(t, rec.SavedAt.IsZero())

	entries, err := os.ReadDir(uploads)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), id+"_"))
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	svc, _, uploads := newTestService(t, completingRunner)

	_, err := svc.Upload(context.Background(), "malware.exe", strings.NewReader("MZ"))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errx.StatusOf(err))
	assert.Contains(t, errx.MessageOf(err), "pdf, docx, txt")

	entries, err := os.ReadDir(uploads)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadRejectsUnreadableDocument(t *testing.T) {
	svc, _, uploads := newTestService(t, completingRunner)

	_, err := svc.Upload(context.Background(), "broken.txt", strings.NewReader("\xff\xfe\xfd"))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errx.StatusOf(err))

	entries, err := os.ReadDir(uploads)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJobWithStageErrorIsFailedButSaved(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, func(*ProgressTracker) runnerFunc {
		return func(_ context.Context, s model.AnalysisState) (model.AnalysisState, error) {
			s.Fail("Failed to extract clauses: model unavailable")
			s.Summary = "partial"
			return s, nil
		}
	})

	id, err := svc.Upload(ctx, "contract.txt", strings.NewReader("text"))
	require.NoError(t, err)
	svc.Wait()

	p, err := svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, model.StepError, p.CurrentStep)

	rec, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Failed to extract clauses: model unavailable", rec.Error)
}

func TestJobWithRunnerErrorIsFailed(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, func(*ProgressTracker) runnerFunc {
		return func(_ context.Context, s model.AnalysisState) (model.AnalysisState, error) {
			return s, errors.New("graph exploded")
		}
	})

	id, err := svc.Upload(ctx, "contract.txt", strings.NewReader("text"))
	require.NoError(t, err)
	svc.Wait()

	p, err := svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, p.Status)

	rec, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, rec.Error, "graph exploded")
}

func TestJobOutlivesRequestContext(t *testing.T) {
	svc, _, _ := newTestService(t, func(*ProgressTracker) runnerFunc {
		return func(ctx context.Context, s model.AnalysisState) (model.AnalysisState, error) {
			if err := ctx.Err(); err != nil {
				return s, err
			}
			s.CurrentStep = model.StepComplete
			s.AnalysisComplete = true
			return s, nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	id, err := svc.Upload(ctx, "contract.txt", strings.NewReader("text"))
	require.NoError(t, err)
	cancel()
	svc.Wait()

	p, err := svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
}

func TestStatusUnknownJob(t *testing.T) {
	svc, _, _ := newTestService(t, completingRunner)

	_, err := svc.Status("missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, errx.StatusOf(err))
}

func TestDeleteRemovesRecordAndProgress(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, completingRunner)

	id, err := svc.Upload(ctx, "contract.txt", strings.NewReader("text"))
	require.NoError(t, err)
	svc.Wait()

	require.NoError(t, svc.Delete(ctx, id))
	_, err = svc.Get(ctx, id)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = svc.Status(id)
	assert.Equal(t, http.StatusNotFound, errx.StatusOf(err))

	assert.True(t, errors.Is(svc.Delete(ctx, id), storage.ErrNotFound))
}

func TestListFiltersByRisk(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, completingRunner)

	for i := 0; i < 3; i++ {
		_, err := svc.Upload(ctx, "contract.txt", strings.NewReader("text"))
		require.NoError(t, err)
	}
	svc.Wait()

	low, err := svc.List(ctx, storage.Filter{RiskLevel: model.RiskLow})
	require.NoError(t, err)
	assert.Len(t, low, 3)

	high, err := svc.List(ctx, storage.Filter{RiskLevel: model.RiskHigh})
	require.NoError(t, err)
	assert.Empty(t, high)
}

func TestProgressTrackerConcurrentSteps(t *testing.T) {
	tr := NewProgressTracker()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		tr.Start(id)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for pct := 10; pct <= 90; pct += 10 {
			wg.Add(1)
			go func(id string, pct int) {
				defer wg.Done()
				tr.Step(id, "step", pct)
				tr.Get(id)
			}(id, pct)
		}
	}
	wg.Wait()

	for _, id := range ids {
		p, ok := tr.Get(id)
		require.True(t, ok)
		assert.Equal(t, 90, p.Progress)
		assert.Equal(t, StatusProcessing, p.Status)
	}
}

func TestProgressTrackerIgnoresLateSteps(t *testing.T) {
	tr := NewProgressTracker()
	tr.Step("unknown", "step", 50)
	_, ok := tr.Get("unknown")
	assert.False(t, ok)

	tr.Start("a")
	tr.Step("a", model.StepRiskAssessed, 60)
	tr.Finish("a", StatusFailed, model.StepError)
	tr.Step("a", model.StepComplete, 100)

	p, _ := tr.Get("a")
	assert.Equal(t, Progress{Status: StatusFailed, Progress: 60, CurrentStep: model.StepError}, p)
}

func TestLoadRiskRules(t *testing.T) {
	dir := t.TempDir()

	rules, err := LoadRiskRules(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRiskRules(), rules)

	path := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"termination_rules": {"min_notice_days": 90}}`), 0o644))
	rules, err = LoadRiskRules(path)
	require.NoError(t, err)
	assert.Equal(t, 90, rules.TerminationRules.MinNoticeDays)
	assert.Equal(t, 5.0, rules.LiabilityRules.MaxLiabilityMultiplier)

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o644))
	_, err = LoadRiskRules(path)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RulesFileLoader(path)(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
