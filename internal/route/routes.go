package route

import (
	"net/http"
	"os"
	"path/filepath"

	"wastesort/internal/category"
	"wastesort/internal/config"
	"wastesort/internal/control"
	"wastesort/internal/display"
	"wastesort/internal/handler"
	"wastesort/internal/logger"
	"wastesort/internal/middleware"
	"wastesort/internal/repository"
	"wastesort/internal/service/pipeline"
)

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	Auth       *middleware.Auth
	Cell       *control.Cell
	Sessions   handler.SessionController
	Hub        *display.HubService
	MJPEG      *display.MJPEGSink
	Detector   pipeline.Detector
	Annotator  pipeline.FrameAnnotator
	Aggregator pipeline.AdvisoryAggregator
	Table      *category.Table

	SessionRepo   repository.SessionRepository
	SnapshotRepo  repository.SnapshotRepository
	DetectionRepo repository.DetectionRepository
}

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", path+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	log := d.Logger

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Live view
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(d.Hub, log))
	mux.Handle("/stream.mjpg", d.MJPEG.Handler())

	// Control state
	mux.HandleFunc("/api/control", handler.ControlStateHandler(d.Cell, log))
	mux.HandleFunc("/api/control/mode", handler.ControlModeHandler(d.Cell, log))
	mux.HandleFunc("/api/control/record", handler.ControlRecordHandler(d.Cell, log))
	mux.HandleFunc("/api/control/destination", handler.ControlDestinationHandler(d.Cell, log))

	// Sessions
	mux.HandleFunc("/api/sessions", handler.SessionsHandler(d.Sessions, d.SessionRepo, d.Config, log))
	mux.HandleFunc("/api/sessions/stop", handler.StopSessionHandler(d.Sessions, log))
	mux.HandleFunc("/api/status", handler.StatusHandler(d.Sessions, log))

	// Single image
	mux.HandleFunc("/api/detect", handler.DetectHandler(d.Detector, d.Annotator, d.Aggregator, d.Table, log))

	// Snapshot index
	mux.HandleFunc("/api/snapshots", handler.GetSnapshotsHandler(d.SnapshotRepo, d.DetectionRepo, log))
	mux.HandleFunc("/api/snapshots/view", handler.ViewSnapshotHandler(d.SnapshotRepo, log))
	mux.HandleFunc("/api/snapshots/delete", handler.DeleteSnapshotHandler(d.SnapshotRepo, log))
	mux.HandleFunc("/api/snapshots/stats", handler.SnapshotStatsHandler(d.SnapshotRepo, log))
	mux.HandleFunc("/api/snapshots/labels", handler.LabelsHandler(d.DetectionRepo, log))

	// Log endpoints
	for _, level := range []string{"info", "warning", "error"} {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(d.Config.LogDirectory, level))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(log, level))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(d.Config, d.Auth, log))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler(d.Auth))

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	// Apply middleware
	return d.Auth.Middleware(mux)
}
