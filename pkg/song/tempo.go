package song

import "sort"

const (
	// DefaultMicrosPerQuarter は最初のテンポ変更までのテンポ（120 BPM）
	DefaultMicrosPerQuarter = 500000
	// DefaultResolution は分解能が不明な場合のTicks per quarter
	DefaultResolution = 480
)

// TempoChange はテンポ変更イベント（tick位置と4分音符あたりのマイクロ秒）
type TempoChange struct {
	Tick             uint64
	MicrosPerQuarter uint32
}

// BPM はテンポ変更のBPMを返す
func (c TempoChange) BPM() float64 {
	return 60000000.0 / float64(c.MicrosPerQuarter)
}

// TempoMap converts MIDI ticks to absolute seconds. For metrical time
// division every tempo change applies from its tick onward; the elapsed time
// at each change is precomputed so lookups are a binary search.
//
// A TempoMap built by NewTimeCodeMap has a fixed tick length and no tempo
// changes.
type TempoMap struct {
	resolution int
	changes    []TempoChange
	secondsAt  []float64

	// SMPTE時間分解能の場合の1tickあたりの秒数（0ならmetrical）
	tickSeconds float64
}

// NewTempoMap creates a TempoMap for a metrical file with the given ticks per
// quarter note. Changes may be unsorted; a later change at the same tick wins.
// The default tempo is inserted at tick 0 when no change starts there.
func NewTempoMap(resolution int, changes []TempoChange) *TempoMap {
	if resolution <= 0 {
		resolution = DefaultResolution
	}

	sorted := make([]TempoChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Tick < sorted[j].Tick })

	merged := make([]TempoChange, 0, len(sorted)+1)
	for _, c := range sorted {
		if c.MicrosPerQuarter == 0 {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].Tick == c.Tick {
			merged[n-1] = c
			continue
		}
		merged = append(merged, c)
	}
	if len(merged) == 0 || merged[0].Tick != 0 {
		merged = append([]TempoChange{{Tick: 0, MicrosPerQuarter: DefaultMicrosPerQuarter}}, merged...)
	}

	m := &TempoMap{resolution: resolution, changes: merged}
	m.precalculate()
	return m
}

// NewTimeCodeMap creates a TempoMap for SMPTE time division.
// framesPerSecond 29 is treated as 29.97 drop-frame.
func NewTimeCodeMap(framesPerSecond, subFrames int) *TempoMap {
	fps := float64(framesPerSecond)
	if framesPerSecond == 29 {
		fps = 29.97
	}
	if fps <= 0 || subFrames <= 0 {
		return NewTempoMap(DefaultResolution, nil)
	}
	return &TempoMap{
		tickSeconds: 1 / (fps * float64(subFrames)),
		changes:     []TempoChange{{Tick: 0, MicrosPerQuarter: DefaultMicrosPerQuarter}},
		secondsAt:   []float64{0},
	}
}

// precalculate 各テンポ変更位置までの経過秒数を計算する
func (m *TempoMap) precalculate() {
	m.secondsAt = make([]float64, len(m.changes))
	for i := 1; i < len(m.changes); i++ {
		prev := m.changes[i-1]
		ticks := m.changes[i].Tick - prev.Tick
		m.secondsAt[i] = m.secondsAt[i-1] + m.ticksToSeconds(ticks, prev.MicrosPerQuarter)
	}
}

func (m *TempoMap) ticksToSeconds(ticks uint64, micros uint32) float64 {
	return float64(ticks) * float64(micros) / float64(m.resolution) / 1000000.0
}

// segment tick以前で最後のテンポ変更のインデックス
func (m *TempoMap) segment(tick uint64) int {
	i := sort.Search(len(m.changes), func(i int) bool { return m.changes[i].Tick > tick })
	if i == 0 {
		return 0
	}
	return i - 1
}

// Seconds converts an absolute tick to seconds.
func (m *TempoMap) Seconds(tick uint64) float64 {
	if m.tickSeconds > 0 {
		return float64(tick) * m.tickSeconds
	}
	i := m.segment(tick)
	c := m.changes[i]
	return m.secondsAt[i] + m.ticksToSeconds(tick-c.Tick, c.MicrosPerQuarter)
}

// Tick converts seconds to the nearest tick at or before that time.
func (m *TempoMap) Tick(seconds float64) uint64 {
	if seconds <= 0 {
		return 0
	}
	if m.tickSeconds > 0 {
		return uint64(seconds/m.tickSeconds + 1e-9)
	}
	i := sort.Search(len(m.secondsAt), func(i int) bool { return m.secondsAt[i] > seconds })
	if i > 0 {
		i--
	}
	c := m.changes[i]
	perTick := float64(c.MicrosPerQuarter) / float64(m.resolution) / 1000000.0
	return c.Tick + uint64((seconds-m.secondsAt[i])/perTick+1e-9)
}

// BPMAt returns the tempo in effect at tick.
func (m *TempoMap) BPMAt(tick uint64) float64 {
	return m.changes[m.segment(tick)].BPM()
}

// Resolution は4分音符あたりのtick数（SMPTEの場合は0）
func (m *TempoMap) Resolution() int {
	if m.tickSeconds > 0 {
		return 0
	}
	return m.resolution
}

// Changes はtick 0の既定テンポを含むテンポ変更の一覧を返す
func (m *TempoMap) Changes() []TempoChange {
	out := make([]TempoChange, len(m.changes))
	copy(out, m.changes)
	return out
}
