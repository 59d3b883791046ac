// Package keyboard tracks which piano keys are down and why.
package keyboard

import (
	"sort"

	"github.com/zurustar/keyfall/pkg/song"
)

const (
	// LowestKey は88鍵の最低音（A0）
	LowestKey = 21
	// HighestKey は88鍵の最高音（C8）
	HighestKey = 108
	// KeyCount は鍵盤の数
	KeyCount = HighestKey - LowestKey + 1
)

// InRange はピッチが88鍵の範囲内かどうかを返す
func InRange(pitch int) bool {
	return pitch >= LowestKey && pitch <= HighestKey
}

// Source は鍵盤が押されている理由（ビットの組み合わせ）
type Source int

const (
	SourcePlayback Source = 1 << iota
	SourceHuman
)

// State は押されている鍵盤の集合。再生中の音符は毎フレーム丸ごと更新し、
// 人の入力は Press / Release で個別に更新する
type State struct {
	playback map[int]song.Hand
	human    map[int]bool
}

// New は空のStateを作成する
func New() *State {
	return &State{
		playback: map[int]song.Hand{},
		human:    map[int]bool{},
	}
}

// SetPlayback replaces the playback-held keys with the pitches of sounding.
// When two sounding notes share a pitch the right hand wins the color.
func (s *State) SetPlayback(sounding []song.NoteEvent) {
	clear(s.playback)
	for _, n := range sounding {
		if h, ok := s.playback[n.Pitch]; ok && h == song.HandRight {
			continue
		}
		s.playback[n.Pitch] = n.Hand
	}
}

// Press は人の入力で鍵盤を押す。既に押されていればfalseを返す
func (s *State) Press(pitch int) bool {
	if s.human[pitch] {
		return false
	}
	s.human[pitch] = true
	return true
}

// Release は人の入力で押した鍵盤を離す。押されていなければfalseを返す
func (s *State) Release(pitch int) bool {
	if !s.human[pitch] {
		return false
	}
	delete(s.human, pitch)
	return true
}

// HumanPitches は人が押している鍵盤を昇順で返す
func (s *State) HumanPitches() []int {
	return sortedKeys(s.human)
}

// Source はピッチが押されている理由を返す（押されていなければ0）
func (s *State) Source(pitch int) Source {
	var src Source
	if _, ok := s.playback[pitch]; ok {
		src |= SourcePlayback
	}
	if s.human[pitch] {
		src |= SourceHuman
	}
	return src
}

// Pressed はピッチが押されているかどうかを返す
func (s *State) Pressed(pitch int) bool {
	return s.Source(pitch) != 0
}

// Hand は再生中の音符のハンドタグを返す
func (s *State) Hand(pitch int) (song.Hand, bool) {
	h, ok := s.playback[pitch]
	return h, ok
}

// PressedPitches は押されているすべての鍵盤を昇順で返す
func (s *State) PressedPitches() []int {
	all := map[int]bool{}
	for p := range s.playback {
		all[p] = true
	}
	for p := range s.human {
		all[p] = true
	}
	return sortedKeys(all)
}

// Reset はすべての鍵盤を離す
func (s *State) Reset() {
	clear(s.playback)
	clear(s.human)
}

func sortedKeys[V any](m map[int]V) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
