// Package timeline owns the single playhead of a session and turns its
// movement into note-on / note-off signals and per-frame queries.
package timeline

import (
	"log/slog"
	"math"
	"sort"

	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/song"
)

const (
	MinRate = 0.1
	MaxRate = 3.0
)

// Frame is the result of Query for one rendered frame.
type Frame struct {
	Playhead  float64
	Duration  float64
	Rate      float64
	Paused    bool
	Lookahead float64
	// Visible は [Playhead, Playhead+Lookahead] と重なる音符（開始順）
	Visible []song.NoteEvent
	// Sounding は Start <= Playhead < End の音符（ID順）
	Sounding []song.NoteEvent
}

// Progress は曲全体に対する再生位置の割合（0〜1）
func (f Frame) Progress() float64 {
	if f.Duration <= 0 {
		return 0
	}
	return f.Playhead / f.Duration
}

// Scheduler advances the playhead and reports every note boundary it crosses
// exactly once. A note is sounding while Start <= playhead < End.
//
// A fresh or stopped Scheduler sits before time zero: notes starting at 0
// are reported by the next Advance.
type Scheduler struct {
	song     *song.Song
	playhead float64
	rate     float64
	paused   bool

	// nextOn は開始シグナル未送出の最初の音符のインデックス
	nextOn int
	// active は開始済みで終了シグナル未送出の音符
	active map[int]song.NoteEvent

	log *slog.Logger
}

// New は曲を読み込んだ一時停止状態のSchedulerを作成する
func New(s *song.Song) *Scheduler {
	sc := &Scheduler{
		rate:   1.0,
		paused: true,
		log:    logger.Component("timeline"),
	}
	sc.Load(s)
	return sc
}

// Load replaces the song and rewinds to before time zero. The returned
// signals stop every note of the previous song that was still sounding.
// The pause state and rate are kept.
func (sc *Scheduler) Load(s *song.Song) []Signal {
	if s == nil {
		s = song.Empty()
	}
	offs := sc.releaseAll()
	sc.song = s
	sc.playhead = 0
	sc.nextOn = 0
	sc.log.Debug("song loaded", "notes", len(s.Notes), "duration", s.Duration)
	return offs
}

// Retag swaps in a copy of the current song whose notes differ only in their
// hand tags. The playhead and the sounding set are kept and no signals are
// produced. It reports false when s is not such a copy.
func (sc *Scheduler) Retag(s *song.Song) bool {
	if s == nil || len(s.Notes) != len(sc.song.Notes) {
		return false
	}
	for i, n := range s.Notes {
		old := sc.song.Notes[i]
		if n.ID != old.ID || n.Pitch != old.Pitch || n.Start != old.Start || n.Duration != old.Duration {
			return false
		}
	}
	sc.song = s
	for id := range sc.active {
		sc.active[id] = s.Notes[id]
	}
	return true
}

// Song は現在の曲を返す
func (sc *Scheduler) Song() *song.Song {
	return sc.song
}

// Advance moves the playhead by delta × rate unless paused and returns the
// signals crossed, in time order. Large steps and rate changes between steps
// never duplicate or drop a signal.
func (sc *Scheduler) Advance(delta float64) []Signal {
	if sc.paused || math.IsNaN(delta) {
		return nil
	}
	if delta < 0 {
		delta = 0
	}
	target := sc.clamp(sc.playhead + delta*sc.rate)

	var sigs []Signal
	notes := sc.song.Notes
	for sc.nextOn < len(notes) && notes[sc.nextOn].Start <= target {
		n := notes[sc.nextOn]
		sc.active[n.ID] = n
		sigs = append(sigs, Signal{Kind: NoteOn, Note: n, Time: n.Start})
		sc.nextOn++
	}
	for id, n := range sc.active {
		if n.End() <= target {
			delete(sc.active, id)
			sigs = append(sigs, Signal{Kind: NoteOff, Note: n, Time: n.End()})
		}
	}

	sc.playhead = target
	sortSignals(sigs)
	return sigs
}

// Seek jumps to t (clamped to the song) and resynchronizes the sounding set:
// notes that no longer contain t get a synthetic off and notes that now
// contain t get a synthetic on. Notes jumped over are not reported.
func (sc *Scheduler) Seek(t float64) []Signal {
	if math.IsNaN(t) {
		return nil
	}
	t = sc.clamp(t)

	next := map[int]song.NoteEvent{}
	for _, n := range sc.song.NotesBetween(t, t) {
		if n.Start <= t && t < n.End() {
			next[n.ID] = n
		}
	}

	var sigs []Signal
	for id, n := range sc.active {
		if _, ok := next[id]; !ok {
			sigs = append(sigs, Signal{Kind: NoteOff, Note: n, Time: t, Synthetic: true})
		}
	}
	for id, n := range next {
		if _, ok := sc.active[id]; !ok {
			sigs = append(sigs, Signal{Kind: NoteOn, Note: n, Time: t, Synthetic: true})
		}
	}

	sc.active = next
	sc.playhead = t
	notes := sc.song.Notes
	sc.nextOn = sort.Search(len(notes), func(i int) bool { return notes[i].Start > t })

	sortSignals(sigs)
	sc.log.Debug("seek", "to", t, "signals", len(sigs))
	return sigs
}

// Query returns the notes visible in [playhead, playhead+lookahead] and the
// notes sounding at the playhead.
func (sc *Scheduler) Query(lookahead float64) Frame {
	if lookahead < 0 || math.IsNaN(lookahead) {
		lookahead = 0
	}

	sounding := make([]song.NoteEvent, 0, len(sc.active))
	for _, n := range sc.active {
		sounding = append(sounding, n)
	}
	sort.Slice(sounding, func(i, j int) bool { return sounding[i].ID < sounding[j].ID })

	return Frame{
		Playhead:  sc.playhead,
		Duration:  sc.song.Duration,
		Rate:      sc.rate,
		Paused:    sc.paused,
		Lookahead: lookahead,
		Visible:   sc.song.NotesBetween(sc.playhead, sc.playhead+lookahead),
		Sounding:  sounding,
	}
}

// Pause は再生位置を変えずに一時停止する
func (sc *Scheduler) Pause() {
	sc.paused = true
}

// Resume は一時停止を解除する
func (sc *Scheduler) Resume() {
	sc.paused = false
}

// TogglePause は一時停止状態を切り替え、切り替え後の状態を返す
func (sc *Scheduler) TogglePause() bool {
	sc.paused = !sc.paused
	return sc.paused
}

// Paused は一時停止中かどうかを返す
func (sc *Scheduler) Paused() bool {
	return sc.paused
}

// SetRate sets the playback rate, clamped to [MinRate, MaxRate].
func (sc *Scheduler) SetRate(rate float64) float64 {
	if math.IsNaN(rate) {
		return sc.rate
	}
	sc.rate = math.Max(MinRate, math.Min(MaxRate, rate))
	return sc.rate
}

// Rate は再生速度の倍率を返す
func (sc *Scheduler) Rate() float64 {
	return sc.rate
}

// Playhead は再生位置（秒）を返す
func (sc *Scheduler) Playhead() float64 {
	return sc.playhead
}

// Restart は先頭にシークする（一時停止状態は維持）
func (sc *Scheduler) Restart() []Signal {
	return sc.Seek(0)
}

// Stop silences every sounding note, rewinds to before time zero and pauses.
func (sc *Scheduler) Stop() []Signal {
	offs := sc.releaseAll()
	sc.playhead = 0
	sc.nextOn = 0
	sc.paused = true
	return offs
}

// Finished は最後まで再生し終えたかどうかを返す
func (sc *Scheduler) Finished() bool {
	return sc.playhead >= sc.song.Duration && sc.nextOn >= len(sc.song.Notes) && len(sc.active) == 0
}

// releaseAll 発音中のすべての音符に合成ノートオフを生成する
func (sc *Scheduler) releaseAll() []Signal {
	var sigs []Signal
	for _, n := range sc.active {
		sigs = append(sigs, Signal{Kind: NoteOff, Note: n, Time: sc.playhead, Synthetic: true})
	}
	sc.active = map[int]song.NoteEvent{}
	sortSignals(sigs)
	return sigs
}

func (sc *Scheduler) clamp(t float64) float64 {
	return math.Max(0, math.Min(sc.song.Duration, t))
}
