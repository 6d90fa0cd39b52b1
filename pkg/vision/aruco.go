package vision

import (
	"fmt"
	"sync"

	"github.com/teslashibe/markercam/pkg/marker"
	"github.com/teslashibe/markercam/pkg/scanner"
	"gocv.io/x/gocv"
)

// ArucoDetector wraps OpenCV's ArUco detector with default parameters.
type ArucoDetector struct {
	detector gocv.ArucoDetector
	border   gocv.Scalar

	mu     sync.Mutex
	closed bool
}

// NewArucoDetector builds a detector for d using library default parameters.
func NewArucoDetector(d marker.Dictionary) (*ArucoDetector, error) {
	code, err := dictionaryCode(d)
	if err != nil {
		return nil, err
	}

	dictionary := gocv.GetPredefinedDictionary(code)
	params := gocv.NewArucoDetectorParameters()

	return &ArucoDetector{
		detector: gocv.NewArucoDetectorWithParams(dictionary, params),
		border:   gocv.NewScalar(0, 255, 0, 0), // green, OpenCV's default
	}, nil
}

func dictionaryCode(d marker.Dictionary) (gocv.ArucoDictionaryCode, error) {
	if d == marker.Dict4x4_50 {
		return gocv.ArucoDict4x4_50, nil
	}
	return 0, fmt.Errorf("%w: %s", marker.ErrUnknownDictionary, d)
}

// Detect finds markers in f. A frame with no markers yields an empty result.
func (a *ArucoDetector) Detect(f scanner.Frame) (marker.Result, error) {
	img, ok := f.(*gocv.Mat)
	if !ok {
		return nil, fmt.Errorf("vision: unsupported frame type %T", f)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("vision: detector closed")
	}

	corners, ids, _ := a.detector.DetectMarkers(*img)
	return marker.FromCorners(toPoints(corners), ids)
}

// Draw outlines each marker and labels it with its ID, in place.
func (a *ArucoDetector) Draw(f scanner.Frame, r marker.Result) {
	img, ok := f.(*gocv.Mat)
	if !ok || r.Empty() {
		return
	}
	corners, ids := fromResult(r)
	gocv.ArucoDrawDetectedMarkers(*img, corners, ids, a.border)
}

// Close releases the native detector. Closing twice is a no-op.
func (a *ArucoDetector) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.detector.Close()
	return nil
}

func toPoints(corners [][]gocv.Point2f) [][]marker.Point {
	out := make([][]marker.Point, len(corners))
	for i, cs := range corners {
		out[i] = make([]marker.Point, len(cs))
		for j, p := range cs {
			out[i][j] = marker.Point{X: p.X, Y: p.Y}
		}
	}
	return out
}

func fromResult(r marker.Result) ([][]gocv.Point2f, []int) {
	corners := make([][]gocv.Point2f, len(r))
	ids := make([]int, len(r))
	for i, m := range r {
		ids[i] = m.ID
		corners[i] = make([]gocv.Point2f, len(m.Corners))
		for j, p := range m.Corners {
			corners[i][j] = gocv.Point2f{X: p.X, Y: p.Y}
		}
	}
	return corners, ids
}
