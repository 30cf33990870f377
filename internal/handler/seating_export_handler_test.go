package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-seating-api/internal/dto"
	"github.com/noah-isme/exam-seating-api/internal/models"
	"github.com/noah-isme/exam-seating-api/internal/service"
	appErrors "github.com/noah-isme/exam-seating-api/pkg/errors"
	"github.com/noah-isme/exam-seating-api/pkg/logger"
)

type seatingExportServiceMock struct {
	created     *dto.SeatingExportJobResponse
	status      *dto.SeatingExportStatusResponse
	download    *service.SeatingDownload
	err         error
	lastRequest dto.SeatingExportRequest
}

func (m *seatingExportServiceMock) CreateJob(ctx context.Context, examID, actorID string, req dto.SeatingExportRequest) (*dto.SeatingExportJobResponse, error) {
	m.lastRequest = req
	return m.created, m.err
}

func (m *seatingExportServiceMock) GetStatus(ctx context.Context, id string) (*dto.SeatingExportStatusResponse, error) {
	return m.status, m.err
}

func (m *seatingExportServiceMock) ResolveDownload(ctx context.Context, token string) (*service.SeatingDownload, error) {
	return m.download, m.err
}

func TestSeatingExportHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &seatingExportServiceMock{created: &dto.SeatingExportJobResponse{ID: "job-1", ExamID: "exam-1", Status: models.ExportStatusQueued}}
	handler := NewSeatingExportHandler(svc)

	body := []byte(`{"hall_id":"h1"}`)
	c, w := newGinContext(http.MethodPost, "/exams/exam-1/seating/exports", body)
	c.Request.ContentLength = int64(len(body))
	c.Params = gin.Params{{Key: "id", Value: "exam-1"}}
	c.Set(logger.ActorContextKey, "admin-1")
	handler.Create(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, svc.lastRequest.HallID)
	assert.Equal(t, "h1", *svc.lastRequest.HallID)
}

func TestSeatingExportHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSeatingExportHandler(&seatingExportServiceMock{status: &dto.SeatingExportStatusResponse{ID: "job-1", Status: models.ExportStatusFinished, RowCount: 3}})

	c, w := newGinContext(http.MethodGet, "/seating/exports/job-1", nil)
	c.Params = gin.Params{{Key: "jobId", Value: "job-1"}}
	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "FINISHED", decodeEnvelope(t, w)["data"].(map[string]interface{})["status"])
}

func TestSeatingExportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "chart.csv")
	require.NoError(t, os.WriteFile(path, []byte("Hall,Seat\nMain,1A\n"), 0o644))
	file, err := os.Open(path)
	require.NoError(t, err)

	handler := NewSeatingExportHandler(&seatingExportServiceMock{download: &service.SeatingDownload{
		File:        file,
		Filename:    "chart.csv",
		ContentType: "text/csv",
		ExpiresAt:   time.Now().Add(time.Hour),
	}})

	c, w := newGinContext(http.MethodGet, "/seating/exports/download?token=abc", nil)
	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "chart.csv")
	assert.Equal(t, "Hall,Seat\nMain,1A\n", w.Body.String())
}

func TestSeatingExportHandlerDownloadRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSeatingExportHandler(&seatingExportServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")})

	c, w := newGinContext(http.MethodGet, "/seating/exports/download", nil)
	handler.Download(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/seating/exports/download?token=bad", nil)
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
