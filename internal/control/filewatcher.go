package control

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"wastesort/internal/logger"
)

// Control file names inside the watched directory.
const (
	ModeFile        = "mode"
	RecordFile      = "record"
	DestinationFile = "destination"
)

// FileWatcher lets another process drive a Cell by writing small text files
// into a directory.
type FileWatcher struct {
	dir     string
	cell    *Cell
	logger  *logger.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewFileWatcher(dir string, cell *Cell, logger *logger.Logger) *FileWatcher {
	return &FileWatcher{
		dir:    dir,
		cell:   cell,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start applies the files already present and then watches for changes
// until ctx is cancelled or Close is called.
func (w *FileWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create control directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.watcher = watcher

	for _, name := range []string{DestinationFile, RecordFile, ModeFile} {
		path := filepath.Join(w.dir, name)
		if _, err := os.Stat(path); err == nil {
			w.apply(path)
		}
	}

	w.logger.Info("Watching control directory %s", w.dir)
	go w.run(ctx)
	return nil
}

func (w *FileWatcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				// Editors and shells may truncate before writing
				time.Sleep(time.Millisecond)
				w.apply(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warning("Control watcher error: %v", err)
		}
	}
}

// Close stops watching.
func (w *FileWatcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *FileWatcher) apply(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warning("Failed to read control file %s: %v", path, err)
		return
	}
	value := strings.TrimSpace(string(data))

	switch filepath.Base(path) {
	case ModeFile:
		if value == "" {
			return
		}
		mode, err := ParseMode(value)
		if err != nil {
			w.logger.Warning("Ignoring control file %s: %v", path, err)
			return
		}
		if w.cell.Read().Mode != mode {
			w.cell.SetMode(mode)
			w.logger.Info("Mode set to %s by control file", mode)
		}
	case RecordFile:
		if value == "" {
			return
		}
		enabled, err := parseSwitch(value)
		if err != nil {
			w.logger.Warning("Ignoring control file %s: %v", path, err)
			return
		}
		if w.cell.Read().RecordingEnabled != enabled {
			w.cell.SetRecording(enabled)
			w.logger.Info("Recording enabled=%t by control file", enabled)
		}
	case DestinationFile:
		if w.cell.Read().Destination != value {
			w.cell.SetDestination(value)
			w.logger.Info("Recording destination set to %q by control file", value)
		}
	}
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid switch value %q", s)
	}
	return b, nil
}
