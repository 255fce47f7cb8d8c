package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/legal-assist-poc/server/internal/agent/model"
	"github.com/legal-assist-poc/server/internal/analysis"
	errx "github.com/legal-assist-poc/server/internal/core/error"
	"github.com/legal-assist-poc/server/internal/storage"
)

// multipartOverhead leaves room for the form framing around the file itself.
const multipartOverhead = 1 << 20

type analysisHandler struct {
	svc            *analysis.Service
	maxUploadBytes int64
}

func (h *analysisHandler) register(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.upload)
	rg.GET("/analyses", h.list)
	rg.GET("/analyses/:id", h.get)
	rg.GET("/analyses/:id/status", h.status)
	rg.DELETE("/analyses/:id", h.remove)
}

type uploadResponse struct {
	AnalysisID string          `json:"analysis_id"`
	Status     analysis.Status `json:"status"`
	Filename   string          `json:"filename"`
}

type listResponse struct {
	Analyses []*model.AnalysisRecord `json:"analyses"`
	Total    int                     `json:"total"`
}

func (h *analysisHandler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, h.tooLarge())
			return
		}
		respondError(c, errx.Validation(errors.New("missing file upload")))
		return
	}
	if fh.Size > h.maxUploadBytes {
		respondError(c, h.tooLarge())
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, errx.Validation(fmt.Errorf("read upload: %w", err)))
		return
	}
	defer f.Close()

	id, err := h.svc.Upload(c.Request.Context(), fh.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set("analysisId", id)
	c.JSON(http.StatusAccepted, uploadResponse{
		AnalysisID: id,
		Status:     analysis.StatusProcessing,
		Filename:   fh.Filename,
	})
}

func (h *analysisHandler) tooLarge() error {
	return errx.Validation(fmt.Errorf("file exceeds the upload limit of %d bytes", h.maxUploadBytes))
}

func (h *analysisHandler) status(c *gin.Context) {
	id := c.Param("id")
	c.Set("analysisId", id)
	p, err := h.svc.Status(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *analysisHandler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set("analysisId", id)
	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *analysisHandler) list(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		respondError(c, errx.Validation(err))
		return
	}
	recs, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Analyses: recs, Total: len(recs)})
}

func (h *analysisHandler) remove(c *gin.Context) {
	id := c.Param("id")
	c.Set("analysisId", id)
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseFilter(c *gin.Context) (storage.Filter, error) {
	var f storage.Filter
	if v := strings.ToLower(strings.TrimSpace(c.Query("risk_level"))); v != "" {
		level := model.RiskLevel(v)
		if !level.Valid() {
			return f, fmt.Errorf("risk_level must be one of low, medium, high")
		}
		f.RiskLevel = level
	}
	var err error
	if f.From, err = parseDate(c.Query("date_from"), false); err != nil {
		return f, fmt.Errorf("date_from: %w", err)
	}
	if f.To, err = parseDate(c.Query("date_to"), true); err != nil {
		return f, fmt.Errorf("date_to: %w", err)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, errors.New("date_to is before date_from")
	}
	return f, nil
}

// parseDate accepts RFC 3339 or YYYY-MM-DD. A bare date used as an upper
// bound covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
