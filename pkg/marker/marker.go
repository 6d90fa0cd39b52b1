// Package marker defines the detection types shared by the scanner loop,
// the OpenCV adapters and the dashboard.
package marker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDictionary is returned for dictionary names other than the supported preset.
var ErrUnknownDictionary = errors.New("marker: unknown dictionary")

// Point is an image-plane coordinate in pixels.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Marker is one detected fiducial: its ID and the four corners of its
// quadrilateral in the order the detector produced them.
type Marker struct {
	ID      int      `json:"id"`
	Corners [4]Point `json:"corners"`
}

// Center returns the mean of the four corners.
func (m Marker) Center() Point {
	var c Point
	for _, p := range m.Corners {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= 4
	c.Y /= 4
	return c
}

// Result is the ordered list of markers found in a single frame.
// An empty Result is a normal outcome.
type Result []Marker

// Empty reports whether no markers were found.
func (r Result) Empty() bool {
	return len(r) == 0
}

// IDs returns the marker IDs in detector order.
func (r Result) IDs() []int {
	ids := make([]int, len(r))
	for i, m := range r {
		ids[i] = m.ID
	}
	return ids
}

// FromCorners pairs corner sets with IDs. The two slices must have the same
// length and every corner set must hold exactly four points.
func FromCorners(corners [][]Point, ids []int) (Result, error) {
	if len(ids) == 0 && len(corners) == 0 {
		return nil, nil
	}
	if len(corners) != len(ids) {
		return nil, fmt.Errorf("marker: %d corner sets for %d ids", len(corners), len(ids))
	}

	res := make(Result, len(ids))
	for i, cs := range corners {
		if len(cs) != 4 {
			return nil, fmt.Errorf("marker: id %d has %d corners, want 4", ids[i], len(cs))
		}
		res[i].ID = ids[i]
		copy(res[i].Corners[:], cs)
	}
	return res, nil
}

// Dictionary describes a predefined marker catalog.
type Dictionary struct {
	Name     string // e.g. "4x4_50"
	GridSize int    // bits per side, excluding the border
	Size     int    // number of distinct IDs
}

// Dict4x4_50 is the only dictionary markercam detects: 4x4 bit grid, IDs 0-49.
var Dict4x4_50 = Dictionary{Name: "4x4_50", GridSize: 4, Size: 50}

// Contains reports whether id is a valid ID for the dictionary.
func (d Dictionary) Contains(id int) bool {
	return id >= 0 && id < d.Size
}

// OutOfRange returns the IDs in r that fall outside the dictionary bounds.
func (d Dictionary) OutOfRange(r Result) []int {
	var bad []int
	for _, m := range r {
		if !d.Contains(m.ID) {
			bad = append(bad, m.ID)
		}
	}
	return bad
}

func (d Dictionary) String() string {
	return "DICT_" + strings.ToUpper(d.Name)
}

// LookupDictionary resolves a dictionary by name. Accepts "4x4_50" and
// "DICT_4X4_50" in any case.
func LookupDictionary(name string) (Dictionary, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "dict_")
	if n == "" || n == Dict4x4_50.Name {
		return Dict4x4_50, nil
	}
	return Dictionary{}, fmt.Errorf("%w: %q", ErrUnknownDictionary, name)
}
