package ai

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"

	"wastesort/internal/config"
	"wastesort/internal/logger"
	"wastesort/internal/vision"
)

// classOffset separates boxes of different classes so that a single NMS
// pass only suppresses overlaps within one class.
const classOffset = 4096

// Names is the class list the model was trained with, in class id order.
type Names struct {
	Count int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

// LoadNames reads a YAML file with "nc" and "names" keys.
func LoadNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read names file: %w", err)
	}

	var names Names
	if err := yaml.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to parse names file: %w", err)
	}
	if len(names.Names) == 0 {
		return nil, fmt.Errorf("names file %s has no names", path)
	}
	if names.Count != 0 && names.Count != len(names.Names) {
		return nil, fmt.Errorf("names file %s declares %d classes but lists %d", path, names.Count, len(names.Names))
	}
	return names.Names, nil
}

// DetectorService runs a YOLOv5 ONNX model through the OpenCV DNN module.
type DetectorService struct {
	mu            sync.Mutex // gocv.Net is not safe for concurrent use
	net           gocv.Net
	names         []string
	inputSize     int
	confThreshold float32
	iouThreshold  float32
	maxDetections int
	logger        *logger.Logger
}

// NewDetectorService loads the model and the class names.
func NewDetectorService(cfg *config.Config, logger *logger.Logger) (*DetectorService, error) {
	names, err := LoadNames(cfg.NamesPath)
	if err != nil {
		return nil, err
	}

	service := &DetectorService{
		names:         names,
		inputSize:     cfg.InputSize,
		confThreshold: float32(cfg.ConfThreshold),
		iouThreshold:  float32(cfg.IoUThreshold),
		maxDetections: cfg.MaxDetections,
		logger:        logger,
	}
	if err := service.initializeNet(cfg.ModelPath); err != nil {
		return nil, err
	}
	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.logger.Info("Detection network initialized from %s (%d classes)", modelPath, len(s.names))
	return nil
}

// Names returns the class names in id order.
func (s *DetectorService) Names() []string {
	return s.names
}

// Infer runs the model on frame. The call is not interruptible; ctx is only
// checked before the forward pass starts.
func (s *DetectorService) Infer(ctx context.Context, frame *vision.Frame) ([]vision.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := frame.ToMat()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if frame.Order == vision.Gray {
		if err := gocv.CvtColor(mat, &mat, gocv.ColorGrayToBGR); err != nil {
			return nil, fmt.Errorf("failed to convert image to BGR: %w", err)
		}
	}

	input, lb, err := letterbox(mat, s.inputSize)
	if err != nil {
		return nil, err
	}
	defer input.Close()

	// RGB input scaled to [0,1]; an RGB frame is swapped to BGR first
	swapRB := frame.Order != vision.RGB
	blob := gocv.BlobFromImage(input, 1.0/255.0, image.Pt(s.inputSize, s.inputSize), gocv.NewScalar(0, 0, 0, 0), swapRB, false)
	defer blob.Close()

	s.mu.Lock()
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	s.mu.Unlock()
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 || dims[2] != len(s.names)+5 {
		return nil, fmt.Errorf("unexpected model output shape %v for %d classes", dims, len(s.names))
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read model output: %w", err)
	}

	candidates := decodeOutput(data, dims[1], dims[2], lb, s.confThreshold)
	return s.suppress(candidates, frame.Bounds()), nil
}

// letterboxInfo maps network input coordinates back to the frame.
type letterboxInfo struct {
	scale float32
	padX  float32
	padY  float32
}

func (lb letterboxInfo) toFrame(cx, cy, w, h float32) image.Rectangle {
	x1 := (cx - w/2 - lb.padX) / lb.scale
	y1 := (cy - h/2 - lb.padY) / lb.scale
	x2 := (cx + w/2 - lb.padX) / lb.scale
	y2 := (cy + h/2 - lb.padY) / lb.scale
	return image.Rect(int(x1), int(y1), int(x2), int(y2))
}

// letterbox resizes src to fit a size x size square, keeping the aspect
// ratio and padding with gray.
func letterbox(src gocv.Mat, size int) (gocv.Mat, letterboxInfo, error) {
	w, h := src.Cols(), src.Rows()
	scale := float32(size) / float32(max(w, h))
	newW := max(1, int(float32(w)*scale+0.5))
	newH := max(1, int(float32(h)*scale+0.5))
	padX := (size - newW) / 2
	padY := (size - newH) / 2

	dst := gocv.NewMatWithSize(size, size, gocv.MatTypeCV8UC3)
	dst.SetTo(gocv.NewScalar(114, 114, 114, 0))

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationLinear)
	if resized.Empty() {
		dst.Close()
		return gocv.NewMat(), letterboxInfo{}, fmt.Errorf("failed to resize image")
	}

	roi := dst.Region(image.Rect(padX, padY, padX+newW, padY+newH))
	resized.CopyTo(&roi)
	roi.Close()

	return dst, letterboxInfo{scale: scale, padX: float32(padX), padY: float32(padY)}, nil
}

type candidate struct {
	box     image.Rectangle
	score   float32
	classID int
}

// decodeOutput reads rows of [cx, cy, w, h, objectness, class scores...]
// and keeps those whose best class score passes the threshold.
func decodeOutput(data []float32, rows, cols int, lb letterboxInfo, threshold float32) []candidate {
	var out []candidate
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		objectness := row[4]
		if objectness < threshold {
			continue
		}

		classID, best := 0, float32(0)
		for c, score := range row[5:] {
			if score > best {
				classID, best = c, score
			}
		}
		score := best * objectness
		if score < threshold {
			continue
		}

		out = append(out, candidate{
			box:     lb.toFrame(row[0], row[1], row[2], row[3]),
			score:   score,
			classID: classID,
		})
	}
	return out
}

// suppress runs class-aware NMS and clips the remaining boxes to bounds.
func (s *DetectorService) suppress(candidates []candidate, bounds image.Rectangle) []vision.Detection {
	if len(candidates) == 0 {
		return nil
	}

	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		offset := image.Pt(c.classID*classOffset, c.classID*classOffset)
		boxes[i] = c.box.Add(offset)
		scores[i] = c.score
	}

	indices := gocv.NMSBoxes(boxes, scores, s.confThreshold, s.iouThreshold)
	if s.maxDetections > 0 && len(indices) > s.maxDetections {
		indices = indices[:s.maxDetections]
	}

	detections := make([]vision.Detection, 0, len(indices))
	for _, idx := range indices {
		c := candidates[idx]
		detections = append(detections, vision.Detection{
			Box:        c.box.Intersect(bounds),
			ClassID:    c.classID,
			Label:      s.names[c.classID],
			Confidence: c.score,
		})
	}
	return detections
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}
