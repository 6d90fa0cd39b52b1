package marker

import (
	"errors"
	"testing"
)

func square(x, y, size float32) []Point {
	return []Point{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}}
}

func TestFromCorners(t *testing.T) {
	tests := []struct {
		name    string
		corners [][]Point
		ids     []int
		wantLen int
		wantErr bool
	}{
		{
			name:    "no detections",
			corners: nil,
			ids:     nil,
			wantLen: 0,
		},
		{
			name:    "two markers",
			corners: [][]Point{square(0, 0, 10), square(50, 50, 20)},
			ids:     []int{7, 12},
			wantLen: 2,
		},
		{
			name:    "length mismatch",
			corners: [][]Point{square(0, 0, 10)},
			ids:     []int{7, 12},
			wantErr: true,
		},
		{
			name:    "three corners",
			corners: [][]Point{{{0, 0}, {1, 0}, {1, 1}}},
			ids:     []int{3},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := FromCorners(tc.corners, tc.ids)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res) != tc.wantLen {
				t.Fatalf("len = %d, want %d", len(res), tc.wantLen)
			}
			for i, m := range res {
				if m.ID != tc.ids[i] {
					t.Errorf("res[%d].ID = %d, want %d", i, m.ID, tc.ids[i])
				}
				if m.Corners[2] != tc.corners[i][2] {
					t.Errorf("res[%d].Corners[2] = %v, want %v", i, m.Corners[2], tc.corners[i][2])
				}
			}
		})
	}
}

func TestMarker_Center(t *testing.T) {
	var m Marker
	copy(m.Corners[:], square(10, 20, 40))

	c := m.Center()
	if c.X != 30 || c.Y != 40 {
		t.Errorf("Center = %+v, want {30 40}", c)
	}
}

func TestResult_IDs(t *testing.T) {
	r := Result{{ID: 12}, {ID: 7}, {ID: 12}}

	ids := r.IDs()
	want := []int{12, 7, 12}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs = %v, want %v", ids, want)
		}
	}
	if r.Empty() {
		t.Error("Empty should be false")
	}
	if !Result(nil).Empty() {
		t.Error("nil result should be empty")
	}
}

func TestDictionary_Bounds(t *testing.T) {
	d := Dict4x4_50

	for _, id := range []int{0, 1, 25, 49} {
		if !d.Contains(id) {
			t.Errorf("Contains(%d) = false, want true", id)
		}
	}
	for _, id := range []int{-1, 50, 1000} {
		if d.Contains(id) {
			t.Errorf("Contains(%d) = true, want false", id)
		}
	}

	bad := d.OutOfRange(Result{{ID: 3}, {ID: 50}, {ID: -2}})
	if len(bad) != 2 || bad[0] != 50 || bad[1] != -2 {
		t.Errorf("OutOfRange = %v, want [50 -2]", bad)
	}
}

func TestLookupDictionary(t *testing.T) {
	for _, name := range []string{"", "4x4_50", "DICT_4X4_50", " dict_4x4_50 "} {
		d, err := LookupDictionary(name)
		if err != nil {
			t.Errorf("LookupDictionary(%q): %v", name, err)
			continue
		}
		if d != Dict4x4_50 {
			t.Errorf("LookupDictionary(%q) = %+v", name, d)
		}
	}

	_, err := LookupDictionary("5x5_100")
	if !errors.Is(err, ErrUnknownDictionary) {
		t.Errorf("expected ErrUnknownDictionary, got %v", err)
	}
}

func TestDictionary_String(t *testing.T) {
	if got := Dict4x4_50.String(); got != "DICT_4X4_50" {
		t.Errorf("String() = %q", got)
	}
}
