// Package source provides the frame sources a detection session reads
// from: still images, video files and live cameras or streams.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"wastesort/internal/vision"
)

var (
	// ErrExhausted is returned by finite sources after the last frame.
	ErrExhausted = errors.New("source exhausted")
	// ErrTransient is returned when a read failed but the source is expected
	// to recover, such as a camera glitch. The caller should retry.
	ErrTransient = errors.New("transient source error")
)

// Source yields frames in order.
type Source interface {
	// Next returns the next frame, ErrExhausted at the end of a finite
	// source, or an error wrapping ErrTransient.
	Next() (*vision.Frame, error)
	Close() error
	Describe() string
}

// Kind is the type of source a spec string refers to.
type Kind int

const (
	KindUnknown Kind = iota
	KindCamera
	KindStream
	KindImages
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindCamera:
		return "camera"
	case KindStream:
		return "stream"
	case KindImages:
		return "images"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Live reports whether the source never runs out of frames.
func (k Kind) Live() bool {
	return k == KindCamera || k == KindStream
}

var imageExtensions = map[string]bool{
	"bmp": true, "dng": true, "jpeg": true, "jpg": true, "mpo": true,
	"png": true, "tif": true, "tiff": true, "webp": true,
}

var videoExtensions = map[string]bool{
	"asf": true, "avi": true, "gif": true, "m4v": true, "mkv": true, "mov": true,
	"mp4": true, "mpeg": true, "mpg": true, "ts": true, "wmv": true,
}

var streamPrefixes = []string{"rtsp://", "rtmp://", "http://", "https://"}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// IsImageFile reports whether path has a supported still-image extension.
func IsImageFile(path string) bool {
	return imageExtensions[extension(path)]
}

// IsVideoFile reports whether path has a supported video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[extension(path)]
}

// Classify resolves a spec string to a source kind and, for still images,
// the ordered list of files.
func Classify(spec string) (Kind, []string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return KindUnknown, nil, fmt.Errorf("empty source")
	}

	if _, err := strconv.Atoi(spec); err == nil {
		return KindCamera, nil, nil
	}

	lower := strings.ToLower(spec)
	for _, prefix := range streamPrefixes {
		if strings.HasPrefix(lower, prefix) {
			if IsImageFile(lower) || IsVideoFile(lower) {
				return KindUnknown, nil, fmt.Errorf("remote files are not supported: %s", spec)
			}
			return KindStream, nil, nil
		}
	}

	if strings.ContainsAny(spec, "*?[") {
		matches, err := filepath.Glob(spec)
		if err != nil {
			return KindUnknown, nil, fmt.Errorf("invalid pattern %s: %w", spec, err)
		}
		images := filterImages(matches)
		if len(images) == 0 {
			return KindUnknown, nil, fmt.Errorf("no images match %s", spec)
		}
		return KindImages, images, nil
	}

	info, err := os.Stat(spec)
	if err != nil {
		return KindUnknown, nil, fmt.Errorf("source %s does not exist: %w", spec, err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(spec)
		if err != nil {
			return KindUnknown, nil, fmt.Errorf("failed to read directory %s: %w", spec, err)
		}
		var paths []string
		for _, entry := range entries {
			if !entry.IsDir() {
				paths = append(paths, filepath.Join(spec, entry.Name()))
			}
		}
		images := filterImages(paths)
		if len(images) == 0 {
			return KindUnknown, nil, fmt.Errorf("no images found in %s", spec)
		}
		return KindImages, images, nil
	}

	switch {
	case IsImageFile(spec):
		return KindImages, []string{spec}, nil
	case IsVideoFile(spec):
		return KindVideo, nil, nil
	}
	return KindUnknown, nil, fmt.Errorf("unsupported source %s", spec)
}

func filterImages(paths []string) []string {
	var images []string
	for _, p := range paths {
		if IsImageFile(p) {
			images = append(images, p)
		}
	}
	sort.Strings(images)
	return images
}

// Open classifies spec and opens the matching source.
func Open(spec string) (Source, error) {
	kind, files, err := Classify(spec)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindCamera:
		index, _ := strconv.Atoi(strings.TrimSpace(spec))
		return OpenCamera(index)
	case KindStream:
		return OpenStream(strings.TrimSpace(spec))
	case KindVideo:
		return OpenVideo(spec)
	case KindImages:
		return NewImageSource(files), nil
	default:
		return nil, fmt.Errorf("unsupported source %s", spec)
	}
}
