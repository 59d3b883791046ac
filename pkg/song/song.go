// Package song loads Standard MIDI Files into an immutable, time-ordered
// list of notes with absolute start times and durations in seconds.
package song

import (
	"sort"
)

// Hand は左右どちらの手で弾く音かを表す（表示用の目安）
type Hand int

const (
	HandUnknown Hand = iota
	HandLeft
	HandRight
)

func (h Hand) String() string {
	switch h {
	case HandLeft:
		return "left"
	case HandRight:
		return "right"
	default:
		return "unknown"
	}
}

// MiddleC は左右の手を音高で分ける既定の境界
const MiddleC = 60

// NoteEvent は1つの音符を表す。読み込み後は変更しない
type NoteEvent struct {
	ID       int     // Song.Notes 内のインデックス
	Pitch    int     // 0-127
	Velocity int     // 1-127
	Start    float64 // 開始時刻（秒）
	Duration float64 // 長さ（秒）
	Channel  int     // 0-15
	Track    int     // トラック番号
	Hand     Hand
}

// End は終了時刻（秒）を返す
func (n NoteEvent) End() float64 {
	return n.Start + n.Duration
}

// Metadata はMIDIファイルの付加情報
type Metadata struct {
	Name            string   // ファイル名
	Format          int      // 0, 1, 2
	Tracks          int      // ヘッダーのトラック数
	TicksPerQuarter int      // metricalの場合の分解能
	FramesPerSecond int      // SMPTEの場合のフレームレート
	TrackNames      []string // トラック名（トラック順）
	Copyright       string
	Texts           []string
	InitialBPM      float64
	EndOfTrack      float64 // 最も遅いトラック終端（秒）
}

// Song は読み込まれた曲
type Song struct {
	Notes    []NoteEvent // Start順
	Duration float64     // 最後の音符の終了時刻（秒）
	Tempo    *TempoMap
	Meta     Metadata

	maxNoteDuration float64
}

// Empty は音符を含まない曲を返す
func Empty() *Song {
	return newSong(nil, NewTempoMap(DefaultResolution, nil), Metadata{InitialBPM: 120})
}

// FromNotes builds a song from notes given in any order. Notes are copied,
// sorted and renumbered; hand tags are kept as given.
func FromNotes(notes []NoteEvent) *Song {
	cp := make([]NoteEvent, len(notes))
	copy(cp, notes)
	tm := NewTempoMap(DefaultResolution, nil)
	return newSong(cp, tm, Metadata{InitialBPM: tm.BPMAt(0)})
}

// newSong 音符を並べ替えてIDを振り、曲の長さを計算する
func newSong(notes []NoteEvent, tempo *TempoMap, meta Metadata) *Song {
	sort.SliceStable(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Pitch != b.Pitch {
			return a.Pitch < b.Pitch
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Track < b.Track
	})

	s := &Song{Notes: notes, Tempo: tempo, Meta: meta}
	for i := range s.Notes {
		s.Notes[i].ID = i
		if end := s.Notes[i].End(); end > s.Duration {
			s.Duration = end
		}
		if d := s.Notes[i].Duration; d > s.maxNoteDuration {
			s.maxNoteDuration = d
		}
	}
	return s
}

// MaxNoteDuration は最も長い音符の長さを返す（範囲検索の下限に使う）
func (s *Song) MaxNoteDuration() float64 {
	return s.maxNoteDuration
}

// NotesBetween returns the notes whose [start, end] interval intersects
// [from, to], in start order.
func (s *Song) NotesBetween(from, to float64) []NoteEvent {
	if to < from {
		return nil
	}
	// 開始がfrom-maxNoteDuration以前の音符はfromに届かない
	lo := sort.Search(len(s.Notes), func(i int) bool {
		return s.Notes[i].Start >= from-s.maxNoteDuration
	})
	var out []NoteEvent
	for i := lo; i < len(s.Notes) && s.Notes[i].Start <= to; i++ {
		if s.Notes[i].End() >= from {
			out = append(out, s.Notes[i])
		}
	}
	return out
}

// NotesByHand は指定した手の音符を返す
func (s *Song) NotesByHand(h Hand) []NoteEvent {
	var out []NoteEvent
	for _, n := range s.Notes {
		if n.Hand == h {
			out = append(out, n)
		}
	}
	return out
}

// Channels は音符が使っているチャンネルを昇順で返す
func (s *Song) Channels() []int {
	seen := map[int]bool{}
	var out []int
	for _, n := range s.Notes {
		if !seen[n.Channel] {
			seen[n.Channel] = true
			out = append(out, n.Channel)
		}
	}
	sort.Ints(out)
	return out
}

// withNotes 同じメタデータで音符だけ差し替えた曲を返す
func (s *Song) withNotes(notes []NoteEvent) *Song {
	cp := *s
	cp.Notes = notes
	return &cp
}
