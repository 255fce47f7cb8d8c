package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/legal-assist-poc/server/internal/agent/model"
)

var ErrNotFound = errors.New("analysis not found")

// AnalysisStore persists finished analyses keyed by analysis id.
type AnalysisStore interface {
	// Save stamps SavedAt and stores rec, replacing any record with the same id.
	Save(ctx context.Context, rec *model.AnalysisRecord) error
	Get(ctx context.Context, id string) (*model.AnalysisRecord, error)
	Delete(ctx context.Context, id string) error
	// List returns matching records, newest first.
	List(ctx context.Context, f Filter) ([]*model.AnalysisRecord, error)
}

// Filter narrows List. Zero fields match everything; the date range is inclusive.
type Filter struct {
	RiskLevel model.RiskLevel
	From      time.Time
	To        time.Time
}

// Match reports whether rec passes the filter.
func (f Filter) Match(rec *model.AnalysisRecord) bool {
	if f.RiskLevel != "" && rec.OverallRisk() != f.RiskLevel {
		return false
	}
	if !f.From.IsZero() && rec.SavedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && rec.SavedAt.After(f.To) {
		return false
	}
	return true
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateID rejects ids that could escape a storage namespace.
func ValidateID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("invalid analysis id %q", id)
	}
	return nil
}

func sortNewestFirst(recs []*model.AnalysisRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].SavedAt.After(recs[j].SavedAt)
	})
}
