package scanner

import (
	"time"

	"github.com/teslashibe/markercam/pkg/marker"
)

// Stats summarises a run. Read by the dashboard from another goroutine.
type Stats struct {
	Started           time.Time      `json:"started"`
	Frames            uint64         `json:"frames"`
	FramesWithMarkers uint64         `json:"frames_with_markers"`
	Markers           uint64         `json:"markers"`
	OutOfRange        uint64         `json:"out_of_range"`
	PerID             map[int]uint64 `json:"per_id"`
	LastIDs           []int          `json:"last_ids"`
	LastSeen          time.Time      `json:"last_seen"`
	State             string         `json:"state"`
	StopReason        string         `json:"stop_reason"`
}

// Stats returns a copy of the counters.
func (s *Scanner) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.stats
	out.PerID = make(map[int]uint64, len(s.stats.PerID))
	for id, n := range s.stats.PerID {
		out.PerID[id] = n
	}
	out.LastIDs = append([]int(nil), s.stats.LastIDs...)
	out.State = s.state.String()
	out.StopReason = s.reason.String()
	return out
}

func (s *Scanner) countFrame() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Frames++
	return s.stats.Frames
}

func (s *Scanner) record(res marker.Result, outOfRange int) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.FramesWithMarkers++
	s.stats.Markers += uint64(len(res))
	s.stats.OutOfRange += uint64(outOfRange)
	for _, m := range res {
		s.stats.PerID[m.ID]++
	}
	s.stats.LastIDs = res.IDs()
	s.stats.LastSeen = now
}
