package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"wastesort/internal/advisory"
	"wastesort/internal/category"
	"wastesort/internal/config"
	"wastesort/internal/control"
	"wastesort/internal/dto"
	"wastesort/internal/logger"
	"wastesort/internal/middleware"
	"wastesort/internal/model"
	"wastesort/internal/repository/sqlite"
	"wastesort/internal/service/pipeline"
	"wastesort/internal/vision"
)

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestControlHandlers(t *testing.T) {
	log := logger.NewDiscard()
	cell := control.NewCell(false, "/rec")

	mode := ControlModeHandler(cell, log)
	record := ControlRecordHandler(cell, log)
	destination := ControlDestinationHandler(cell, log)

	tests := []struct {
		name    string
		handler http.Handler
		method  string
		body    string
		want    int
		check   func(control.State) bool
	}{
		{"pause", mode, http.MethodPost, `{"mode":"paused"}`, http.StatusOK, func(s control.State) bool { return s.Mode == control.Paused }},
		{"numeric mode", mode, http.MethodPost, `{"mode":"1"}`, http.StatusOK, func(s control.State) bool { return s.Mode == control.Running }},
		{"bad mode", mode, http.MethodPost, `{"mode":"sideways"}`, http.StatusBadRequest, nil},
		{"mode needs POST", mode, http.MethodGet, "", http.StatusMethodNotAllowed, nil},
		{"record on", record, http.MethodPost, `{"enabled":true}`, http.StatusOK, func(s control.State) bool { return s.RecordingEnabled }},
		{"record toggle", record, http.MethodPost, `{"toggle":true}`, http.StatusOK, func(s control.State) bool { return !s.RecordingEnabled }},
		{"record empty", record, http.MethodPost, `{}`, http.StatusBadRequest, nil},
		{"record unknown field", record, http.MethodPost, `{"on":true}`, http.StatusBadRequest, nil},
		{"destination", destination, http.MethodPost, `{"path":" /tmp/out "}`, http.StatusOK, func(s control.State) bool { return s.Destination == "/tmp/out" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, tt.handler, tt.method, "/api/control", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, expected %d: %s", rec.Code, tt.want, rec.Body)
			}
			if tt.check == nil {
				return
			}
			var state control.State
			if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
				t.Fatalf("Invalid response: %v", err)
			}
			if !tt.check(state) || !tt.check(cell.Read()) {
				t.Errorf("Unexpected state %+v", state)
			}
		})
	}

	rec := do(t, ControlStateHandler(cell, log), http.MethodGet, "/api/control", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"mode":"running"`) {
		t.Errorf("GET /api/control = %d %s", rec.Code, rec.Body)
	}
}

type fakeSessions struct {
	started []string
	startFn func(spec string) (string, error)
	stopErr error
	stopped bool
}

func (f *fakeSessions) Start(spec string) (string, error) {
	f.started = append(f.started, spec)
	return f.startFn(spec)
}

func (f *fakeSessions) Stop(ctx context.Context) error {
	f.stopped = true
	return f.stopErr
}

func (f *fakeSessions) Status() pipeline.SessionStatus {
	return pipeline.SessionStatus{ID: "s1", Running: !f.stopped}
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionsHandler(t *testing.T) {
	log := logger.NewDiscard()
	db := newTestDB(t)
	repo := sqlite.NewSessionRepository(db)
	cfg := &config.Config{Source: "0"}

	running := false
	sessions := &fakeSessions{startFn: func(spec string) (string, error) {
		if running {
			return "", pipeline.ErrSessionRunning
		}
		if spec == "missing.mp4" {
			return "", errors.New("source missing.mp4 does not exist")
		}
		running = true
		return "s1", nil
	}}
	h := SessionsHandler(sessions, repo, cfg, log)

	rec := do(t, h, http.MethodPost, "/api/sessions", "")
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"id":"s1"`) {
		t.Errorf("Start = %d %s", rec.Code, rec.Body)
	}
	if sessions.started[0] != "0" {
		t.Errorf("Expected the configured source, got %q", sessions.started[0])
	}

	if rec := do(t, h, http.MethodPost, "/api/sessions", `{"source":"clip.mp4"}`); rec.Code != http.StatusConflict {
		t.Errorf("Second start = %d, expected 409", rec.Code)
	}

	running = false
	if rec := do(t, h, http.MethodPost, "/api/sessions", `{"source":"missing.mp4"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Bad source = %d, expected 400", rec.Code)
	}

	if err := repo.Insert(&model.Session{ID: "old", Source: "0", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	rec = do(t, h, http.MethodGet, "/api/sessions?limit=5", "")
	var list []model.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 || list[0].ID != "old" {
		t.Errorf("GET /api/sessions = %s, %v", rec.Body, err)
	}

	rec = do(t, StopSessionHandler(sessions, log), http.MethodPost, "/api/sessions/stop", "")
	if rec.Code != http.StatusOK || !sessions.stopped {
		t.Errorf("Stop = %d %s", rec.Code, rec.Body)
	}

	sessions.stopErr = context.DeadlineExceeded
	if rec := do(t, StopSessionHandler(sessions, log), http.MethodPost, "/api/sessions/stop", ""); rec.Code != http.StatusGatewayTimeout {
		t.Errorf("Slow stop = %d, expected 504", rec.Code)
	}

	rec = do(t, StatusHandler(sessions, log), http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"s1"`) {
		t.Errorf("Status = %d %s", rec.Code, rec.Body)
	}
}

func TestSnapshotHandlers(t *testing.T) {
	log := logger.NewDiscard()
	db := newTestDB(t)
	snapshots := sqlite.NewSnapshotRepository(db)
	detections := sqlite.NewDetectionRepository(db)

	dir := t.TempDir()
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	var ids []int64
	for i := int64(0); i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%06d.jpg", i))
		if err := os.WriteFile(path, []byte("jpeg data"), 0644); err != nil {
			t.Fatal(err)
		}
		id, err := snapshots.Insert(&model.Snapshot{
			SessionID: "a", Index: i, Filename: filepath.Base(path), FilePath: path,
			FileSize: 9, CapturedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if err := detections.InsertBatch([]model.Detection{{SnapshotID: ids[1], Label: "battery", Category: "Hazardous"}}); err != nil {
		t.Fatal(err)
	}

	list := GetSnapshotsHandler(snapshots, detections, log)

	rec := do(t, list, http.MethodGet, "/api/snapshots?limit=2", "")
	var data dto.SnapshotsData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("Invalid response %s: %v", rec.Body, err)
	}
	if data.Length != 3 || data.TotalPages != 2 || len(data.Snapshots) != 2 {
		t.Errorf("Unexpected page %+v", data)
	}
	if data.Snapshots[1].Labels[0] != "battery" {
		t.Errorf("Expected labels of the second snapshot, got %+v", data.Snapshots[1])
	}

	rec = do(t, list, http.MethodGet, "/api/snapshots?category=Hazardous", "")
	data = dto.SnapshotsData{}
	json.Unmarshal(rec.Body.Bytes(), &data)
	if data.Length != 1 || data.Snapshots[0].ID != ids[1] {
		t.Errorf("Category filter returned %+v", data)
	}

	rec = do(t, list, http.MethodGet, "/api/snapshots?dateAfter=2025-06-16", "")
	data = dto.SnapshotsData{}
	json.Unmarshal(rec.Body.Bytes(), &data)
	if data.Length != 0 {
		t.Errorf("Date filter returned %+v", data)
	}

	view := ViewSnapshotHandler(snapshots, log)
	if rec := do(t, view, http.MethodGet, "/api/snapshots/view?id="+strconv.FormatInt(ids[0], 10), ""); rec.Code != http.StatusOK || rec.Body.String() != "jpeg data" {
		t.Errorf("View = %d %q", rec.Code, rec.Body)
	}
	if rec := do(t, view, http.MethodGet, "/api/snapshots/view?id=999", ""); rec.Code != http.StatusNotFound {
		t.Errorf("View missing = %d", rec.Code)
	}
	if rec := do(t, view, http.MethodGet, "/api/snapshots/view", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("View without id = %d", rec.Code)
	}

	del := DeleteSnapshotHandler(snapshots, log)
	if rec := do(t, del, http.MethodPost, "/api/snapshots/delete?id="+strconv.FormatInt(ids[0], 10), ""); rec.Code != http.StatusOK {
		t.Errorf("Delete = %d %s", rec.Code, rec.Body)
	}
	if _, err := os.Stat(filepath.Join(dir, "000000.jpg")); !os.IsNotExist(err) {
		t.Error("File still present after delete")
	}

	rec = do(t, SnapshotStatsHandler(snapshots, log), http.MethodGet, "/api/snapshots/stats", "")
	var stats model.SnapshotStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil || stats.TotalSnapshots != 2 {
		t.Errorf("Stats = %s, %v", rec.Body, err)
	}

	rec = do(t, LabelsHandler(detections, log), http.MethodGet, "/api/snapshots/labels", "")
	if strings.TrimSpace(rec.Body.String()) != `["battery"]` {
		t.Errorf("Labels = %s", rec.Body)
	}
}

func TestLoginAndLogout(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	cfg := &config.Config{PasswordHash: hash}
	auth := middleware.NewAuth()
	login := LoginHandler(cfg, auth, logger.NewDiscard())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	login.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Wrong password = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("password=secret"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	login.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Login = %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || !auth.Valid(cookies[0].Value) {
		t.Fatalf("Expected a valid session cookie, got %v", cookies)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	LogoutHandler(auth).ServeHTTP(rec, req)
	if auth.Valid(cookies[0].Value) {
		t.Error("Token still valid after logout")
	}
}

func TestLogsHandlers(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "warning.log"), []byte("WARNING something\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if rec := do(t, ShowLogsHandler(dir, "warning"), http.MethodGet, "/logs/warning", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "something") {
		t.Errorf("Show warning = %d %q", rec.Code, rec.Body)
	}
	if rec := do(t, ShowLogsHandler(dir, "error"), http.MethodGet, "/logs/error", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Show missing = %d", rec.Code)
	}
	if rec := do(t, ClearLogsHandler(logger.NewDiscard(), "info"), http.MethodGet, "/logs/info/clear", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Clear via GET = %d", rec.Code)
	}
}

type stubDetector struct {
	detections []vision.Detection
	err        error
}

func (d stubDetector) Infer(context.Context, *vision.Frame) ([]vision.Detection, error) {
	return d.detections, d.err
}

type passAnnotator struct{}

func (passAnnotator) Annotate(frame *vision.Frame, detections []vision.Detection) (*vision.Frame, vision.LabelSet) {
	return frame, vision.LabelsOf(detections)
}

func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "upload.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/detect", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetectHandler(t *testing.T) {
	log := logger.NewDiscard()
	table := category.Default()
	aggregator := advisory.NewAggregator(table, advisory.English, false, log)

	detector := stubDetector{detections: []vision.Detection{
		{Box: image.Rect(1, 2, 11, 12), Label: "cell phone", Confidence: 0.9},
	}}
	h := DetectHandler(detector, passAnnotator{}, aggregator, table, log)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "image", pngBytes(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Detect = %d %s", rec.Code, rec.Body)
	}

	var resp dto.DetectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response: %v", err)
	}
	if resp.Advisory != "cell phone — dispose as: Recyclable" {
		t.Errorf("Advisory = %q", resp.Advisory)
	}
	if len(resp.Detections) != 1 || resp.Detections[0].Category != "Recyclable" || resp.Detections[0].Width != 10 {
		t.Errorf("Unexpected detections %+v", resp.Detections)
	}
	if resp.Image == "" {
		t.Error("Expected an annotated image")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "file", pngBytes(t)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Missing image field = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "image", []byte("not an image")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Undecodable image = %d", rec.Code)
	}

	unknown := stubDetector{detections: []vision.Detection{{Label: "hoverboard"}}}
	rec = httptest.NewRecorder()
	DetectHandler(unknown, passAnnotator{}, aggregator, table, log).ServeHTTP(rec, uploadRequest(t, "image", pngBytes(t)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Unknown label = %d", rec.Code)
	}

	failing := stubDetector{err: errors.New("bad model")}
	rec = httptest.NewRecorder()
	DetectHandler(failing, passAnnotator{}, aggregator, table, log).ServeHTTP(rec, uploadRequest(t, "image", pngBytes(t)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Model error = %d", rec.Code)
	}
}
