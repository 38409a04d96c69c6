package route

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"wastesort/internal/advisory"
	"wastesort/internal/category"
	"wastesort/internal/config"
	"wastesort/internal/control"
	"wastesort/internal/display"
	"wastesort/internal/logger"
	"wastesort/internal/middleware"
	"wastesort/internal/repository/sqlite"
	"wastesort/internal/service/pipeline"
	"wastesort/internal/vision"
)

type idleSessions struct{}

func (idleSessions) Start(string) (string, error) { return "", pipeline.ErrSessionRunning }
func (idleSessions) Stop(context.Context) error { return nil }
func (idleSessions) Status() pipeline.SessionStatus { return pipeline.SessionStatus{} }

type noDetector struct{}

func (noDetector) Infer(context.Context, *vision.Frame) ([]vision.Detection, error) { return nil, nil }

type noAnnotator struct{}

func (noAnnotator) Annotate(f *vision.Frame, d []vision.Detection) (*vision.Frame, vision.LabelSet) {
	return f, vision.LabelsOf(d)
}

func TestSetupRoutes(t *testing.T) {
	log := logger.NewDiscard()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	auth := middleware.NewAuth()
	token := auth.Issue()
	cell := control.NewCell(true, "/rec")

	router := SetupRoutes(Deps{
		Config:        &config.Config{LogDirectory: t.TempDir()},
		Logger:        log,
		Auth:          auth,
		Cell:          cell,
		Sessions:      idleSessions{},
		Hub:           display.NewHubService(log),
		MJPEG:         display.NewMJPEGSink(log),
		Detector:      noDetector{},
		Annotator:     noAnnotator{},
		Aggregator:    advisory.NewAggregator(category.Default(), advisory.English, false, log),
		Table:         category.Default(),
		SessionRepo:   sqlite.NewSessionRepository(db),
		SnapshotRepo:  sqlite.NewSnapshotRepository(db),
		DetectionRepo: sqlite.NewDetectionRepository(db),
	})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		authed bool
		want   int
	}{
		{"control requires login", http.MethodGet, "/api/control", "", false, http.StatusUnauthorized},
		{"control state", http.MethodGet, "/api/control", "", true, http.StatusOK},
		{"pause", http.MethodPost, "/api/control/mode", `{"mode":"paused"}`, true, http.StatusOK},
		{"status", http.MethodGet, "/api/status", "", true, http.StatusOK},
		{"session conflict", http.MethodPost, "/api/sessions", `{"source":"0"}`, true, http.StatusConflict},
		{"snapshots", http.MethodGet, "/api/snapshots", "", true, http.StatusOK},
		{"labels", http.MethodGet, "/api/snapshots/labels", "", true, http.StatusOK},
		{"missing log", http.MethodGet, "/logs/info", "", true, http.StatusNotFound},
		{"unknown page", http.MethodGet, "/nothing-here", "", true, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.authed {
				req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: token})
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, expected %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}

	if cell.Read().Mode != control.Paused {
		t.Error("POST /api/control/mode did not reach the cell")
	}
}
