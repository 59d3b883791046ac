package timeline

import (
	"sort"

	"github.com/zurustar/keyfall/pkg/song"
)

// SignalKind はノートオン／ノートオフの区別
type SignalKind int

const (
	NoteOn SignalKind = iota
	NoteOff
)

func (k SignalKind) String() string {
	if k == NoteOn {
		return "on"
	}
	return "off"
}

// Signal は再生位置が音符の開始または終了を通過したことを表す
type Signal struct {
	Kind SignalKind
	Note song.NoteEvent
	// Time は通過した時刻（曲の秒）。Seekによる合成シグナルはシーク先の時刻
	Time float64
	// Synthetic はSeekやStopで生成されたシグナル
	Synthetic bool
}

// phase orders signals at the same instant: a sounding note stops before
// another starts, and a zero-length note starts before it stops.
func (s Signal) phase() int {
	switch {
	case s.Kind == NoteOff && s.Note.Duration > 0:
		return 0
	case s.Kind == NoteOn:
		return 1
	default:
		return 2
	}
}

func sortSignals(sigs []Signal) {
	sort.Slice(sigs, func(i, j int) bool {
		a, b := sigs[i], sigs[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if pa, pb := a.phase(), b.phase(); pa != pb {
			return pa < pb
		}
		return a.Note.ID < b.Note.ID
	})
}
