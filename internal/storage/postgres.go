package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/legal-assist-poc/server/internal/agent/model"
	errx "github.com/legal-assist-poc/server/internal/core/error"
)

// PostgresStore keeps each record as a JSONB payload with the filter columns lifted out.
type PostgresStore struct {
	DB  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db, now: time.Now}
}

func (s *PostgresStore) Save(ctx context.Context, rec *model.AnalysisRecord) error {
	if rec == nil {
		return errx.Validation(errors.New("record is nil"))
	}
	if err := ValidateID(rec.AnalysisID); err != nil {
		return errx.Validation(err)
	}

	stored := *rec
	stored.SavedAt = s.now().UTC()
	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	const query = `
INSERT INTO analyses (analysis_id, overall_risk, saved_at, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (analysis_id) DO UPDATE
SET overall_risk = EXCLUDED.overall_risk, saved_at = EXCLUDED.saved_at, payload = EXCLUDED.payload`
	if _, err := s.DB.ExecContext(ctx, query,
		stored.AnalysisID,
		string(stored.OverallRisk()),
		stored.SavedAt,
		payload,
	); err != nil {
		return errx.WrapStorage(err)
	}
	rec.SavedAt = stored.SavedAt
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	const query = `SELECT payload FROM analyses WHERE analysis_id = $1 LIMIT 1`
	var payload []byte
	if err := s.DB.QueryRowContext(ctx, query, id).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errx.NotFound(ErrNotFound)
		}
		return nil, errx.WrapStorage(err)
	}
	return decodeRecord(payload)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM analyses WHERE analysis_id = $1`, id)
	if err != nil {
		return errx.WrapStorage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errx.WrapStorage(err)
	}
	if n == 0 {
		return errx.NotFound(ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*model.AnalysisRecord, error) {
	query, args := listQuery(f)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errx.WrapStorage(err)
	}
	defer rows.Close()

	out := []*model.AnalysisRecord{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errx.WrapStorage(err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapStorage(err)
	}
	return out, nil
}

func listQuery(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.RiskLevel != "" {
		args = append(args, string(f.RiskLevel))
		where = append(where, fmt.Sprintf("overall_risk = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From.UTC())
		where = append(where, fmt.Sprintf("saved_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To.UTC())
		where = append(where, fmt.Sprintf("saved_at <= $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT payload FROM analyses")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY saved_at DESC")
	return b.String(), args
}

func decodeRecord(payload []byte) (*model.AnalysisRecord, error) {
	var rec model.AnalysisRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, errx.WrapStorage(fmt.Errorf("decode analysis payload: %w", err))
	}
	return &rec, nil
}

var _ AnalysisStore = (*PostgresStore)(nil)
