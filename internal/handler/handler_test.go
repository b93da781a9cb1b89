package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"satnorm/internal/config"
	"satnorm/internal/domain"
)

type fakeService struct {
	normalize func(ctx context.Context, archive []byte, target *float64) (*domain.Run, error)
	results   map[string][]byte
}

func (f *fakeService) Normalize(ctx context.Context, archive []byte, target *float64) (*domain.Run, error) {
	return f.normalize(ctx, archive, target)
}

func (f *fakeService) ListResults(ctx context.Context, runID string) ([]string, error) {
	var names []string
	for k := range f.results {
		names = append(names, k)
	}
	return names, nil
}

func (f *fakeService) OpenResult(ctx context.Context, runID, name string) (io.ReadCloser, error) {
	data, ok := f.results[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestRouter(svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{App: config.AppConfig{MaxUploadSize: 1 << 20}}
	h := NewHandler(svc, cfg, zap.NewNop())

	r := gin.New()
	r.GET("/health", h.HealthCheck)
	r.POST("/api/normalize", h.Normalize)
	r.GET("/api/runs/:run/images", h.ListResults)
	r.GET("/api/runs/:run/images/:name", h.DownloadResult)
	return r
}

func uploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/normalize", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(&fakeService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())
}

func TestNormalize_OK(t *testing.T) {
	var gotTarget *float64
	svc := &fakeService{
		normalize: func(ctx context.Context, archive []byte, target *float64) (*domain.Run, error) {
			assert.Equal(t, []byte("zipbytes"), archive)
			gotTarget = target
			return &domain.Run{
				ID:      "run-1",
				Report:  domain.BatchReport{Total: 1, Passed: 1, Verdict: domain.VerdictExcellent},
				Results: []string{"normalized_a.png"},
			}, nil
		},
	}

	w := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(w, uploadRequest(t, "batch.ZIP", []byte("zipbytes"), map[string]string{"target_intensity": "120.5"}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, gotTarget)
	assert.Equal(t, 120.5, *gotTarget)

	var run domain.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, domain.VerdictExcellent, run.Report.Verdict)
}

func TestNormalize_BadRequests(t *testing.T) {
	svc := &fakeService{
		normalize: func(ctx context.Context, archive []byte, target *float64) (*domain.Run, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	router := newTestRouter(svc)

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
	}{
		{"missing file", uploadRequest(t, "", nil, nil), http.StatusBadRequest},
		{"wrong extension", uploadRequest(t, "a.png", []byte("x"), nil), http.StatusBadRequest},
		{"target not a number", uploadRequest(t, "a.zip", []byte("x"), map[string]string{"target_intensity": "bright"}), http.StatusBadRequest},
		{"target out of range", uploadRequest(t, "a.zip", []byte("x"), map[string]string{"target_intensity": "300"}), http.StatusBadRequest},
		{"too large", uploadRequest(t, "a.zip", bytes.Repeat([]byte("x"), 1<<20+1), nil), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, tt.req)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestNormalize_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load archive: %w", domain.ErrEmptyBatch), http.StatusUnprocessableEntity},
		{domain.ErrInvalidArchive, http.StatusUnprocessableEntity},
		{domain.ErrInvalidOptions, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		svc := &fakeService{
			normalize: func(ctx context.Context, archive []byte, target *float64) (*domain.Run, error) {
				return nil, tt.err
			},
		}
		w := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(w, uploadRequest(t, "a.zip", []byte("x"), nil))
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}

func TestListAndDownload(t *testing.T) {
	svc := &fakeService{results: map[string][]byte{"normalized_a.png": []byte("PNGDATA")}}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/r1/images", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"run":"r1","images":["normalized_a.png"]}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/r1/images/normalized_a.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PNGDATA", w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/r1/images/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListResults_EmptyRun(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(&fakeService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/r9/images", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
