package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legal-assist-poc/server/internal/agent/model"
	"github.com/legal-assist-poc/server/internal/analysis"
	"github.com/legal-assist-poc/server/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type runnerFunc func(ctx context.Context, s model.AnalysisState) (model.AnalysisState, error)

func (f runnerFunc) Run(ctx context.Context, s model.AnalysisState) (model.AnalysisState, error) {
	return f(ctx, s)
}

func newAnalysisServer(t *testing.T, maxUpload int64) (*Server, *analysis.Service) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(filepath.Join(dir, "data"))
	require.NoError(t, err)

	svc, err := analysis.NewService(analysis.ServiceConfig{
		Runner: runnerFunc(func(_ context.Context, s model.AnalysisState) (model.AnalysisState, error) {
			s.RiskAssessment = &model.RiskAssessment{OverallRisk: model.RiskHigh, RiskScore: 8, RedFlags: []string{"Texas law"}}
			s.ReviewRequired = true
			s.HumanFeedback = model.PendingReviewMarker
			s.Summary = "High risk"
			s.AnalysisComplete = true
			s.CurrentStep = model.StepComplete
			return s, nil
		}),
		Store:     store,
		UploadDir: filepath.Join(dir, "uploads"),
	})
	require.NoError(t, err)

	srv, err := New(Deps{Analyses: svc}, Options{MaxUploadBytes: maxUpload})
	require.NoError(t, err)
	return srv, svc
}

func multipartUpload(t *testing.T, field, filename string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyses", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newAnalysisServer(t, 1<<20)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "analysis_jobs_active")
}

func TestAnalysisLifecycle(t *testing.T) {
	srv, svc := newAnalysisServer(t, 1<<20)

	rec := serve(srv, multipartUpload(t, "file", "msa.txt", []byte("Governed by the laws of Texas.")))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var up uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	require.NotEmpty(t, up.AnalysisID)
	assert.Equal(t, analysis.StatusProcessing, up.Status)
	svc.Wait()

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/analyses/"+up.AnalysisID+"/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"completed","progress":100,"current_step":"complete"}`, rec.Body.String())

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/analyses/"+up.AnalysisID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.AnalysisRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.PendingReviewMarker, got.HumanFeedback)
	assert.Equal(t, "msa.txt", got.DocumentMetadata.Filename)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/analyses?risk_level=HIGH&date_from=2000-01-01", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/analyses?risk_level=low", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Total)
	assert.NotNil(t, list.Analyses)

	rec = serve(srv, httptest.NewRequest(http.MethodDelete, "/api/analyses/"+up.AnalysisID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/analyses/"+up.AnalysisID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}

func TestUploadValidation(t *testing.T) {
	srv, _ := newAnalysisServer(t, 16)

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{
			name: "unsupported extension",
			req:  multipartUpload(t, "file", "contract.exe", []byte("MZ")),
			want: "unsupported document format",
		},
		{
			name: "missing file field",
			req:  multipartUpload(t, "document", "contract.txt", []byte("text")),
			want: "missing file upload",
		},
		{
			name: "too large",
			req:  multipartUpload(t, "file", "contract.txt", bytes.Repeat([]byte("a"), 64)),
			want: "upload limit",
		},
		{
			name: "not multipart",
			req:  httptest.NewRequest(http.MethodPost, "/api/analyses", strings.NewReader("{}")),
			want: "missing file upload",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(srv, tt.req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "invalid_request", body.Code)
			assert.Contains(t, body.Message, tt.want)
		})
	}
}

func TestListRejectsBadFilters(t *testing.T) {
	srv, _ := newAnalysisServer(t, 1<<20)

	for _, q := range []string{
		"risk_level=severe",
		"date_from=yesterday",
		"date_from=2025-02-01&date_to=2025-01-01",
	} {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/analyses?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	srv, _ := newAnalysisServer(t, 1<<20)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/analyses/nope/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseDateEndOfDay(t *testing.T) {
	from, err := parseDate("2025-03-01", false)
	require.NoError(t, err)
	to, err := parseDate("2025-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, 0, from.Hour())
	assert.Equal(t, 23, to.Hour())
	assert.True(t, to.After(from))

	exact, err := parseDate("2025-03-01T10:00:00Z", true)
	require.NoError(t, err)
	assert.Equal(t, 10, exact.Hour())
}

func TestCORSPreflight(t *testing.T) {
	srv, err := New(Deps{}, Options{AllowedOrigins: []string{"http://localhost:3000"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/analyses", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := serve(srv, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/analyses", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = serve(srv, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
