// Package sound plays one voice per sounding note: a recorded piano sample
// per pitch when available, otherwise a SoundFont-rendered or generated tone.
package sound

import (
	"errors"
	"math"
	"sync"
)

// SampleRate is the output sample rate shared by samples and synthesized voices.
const SampleRate = 44100

var (
	// ErrMissingAsset is returned when a pitch's sample file is absent or
	// cannot be decoded. The bank substitutes a fallback voice.
	ErrMissingAsset = errors.New("missing sound asset")

	// ErrAudioUnavailable is returned when no audio device can be opened.
	// The output disables itself and stays silent.
	ErrAudioUnavailable = errors.New("audio output unavailable")

	// ErrPitchOutOfRange は88鍵の外の音高を表す。サンプルも代替音も用意しない
	ErrPitchOutOfRange = errors.New("pitch outside the keyboard")
)

// Output receives note signals. Muting silences playback but signals are
// still accepted so callers never need to special-case it.
type Output interface {
	NoteOn(id, pitch, velocity int) error
	NoteOff(id int)
	StopAll()
	SetVolume(v float64)
	Volume() float64
	SetMuted(muted bool)
	Muted() bool
	// Enabled はオーディオ出力が使えるかどうかを返す
	Enabled() bool
	// Update はフレームごとに呼ばれ、リリース中のボイスを処理する
	Update()
	Close() error
}

// Gain maps MIDI velocity to a linear gain: silent at 0, full at 127,
// square law in between with a floor so soft notes stay audible.
func Gain(velocity int) float64 {
	if velocity <= 0 {
		return 0
	}
	if velocity >= 127 {
		return 1
	}
	v := float64(velocity) / 127
	return math.Max(0.05, v*v)
}

func clampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// EventKind は Silent が記録するイベントの種類
type EventKind int

const (
	EventNoteOn EventKind = iota
	EventNoteOff
	EventStopAll
)

// Event は Silent が記録した呼び出し
type Event struct {
	Kind     EventKind
	ID       int
	Pitch    int
	Velocity int
	// Gain は実際に鳴らしたとしたら使われた音量（ミュート中は0）
	Gain float64
}

// Silent is an Output that produces no sound and records what it was asked
// to play. It is used in headless mode and when audio is unavailable.
type Silent struct {
	mu      sync.Mutex
	volume  float64
	muted   bool
	enabled bool
	voices  map[int]int
	events  []Event
}

// NewSilent は無音出力を作成する。enabled=false はオーディオ不可を表す
func NewSilent(enabled bool) *Silent {
	return &Silent{volume: 1, enabled: enabled, voices: map[int]int{}}
}

func (s *Silent) NoteOn(id, pitch, velocity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gain := Gain(velocity) * s.volume
	if s.muted {
		gain = 0
	}
	s.voices[id] = pitch
	s.events = append(s.events, Event{Kind: EventNoteOn, ID: id, Pitch: pitch, Velocity: velocity, Gain: gain})
	return nil
}

func (s *Silent) NoteOff(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pitch, ok := s.voices[id]
	if !ok {
		return
	}
	delete(s.voices, id)
	s.events = append(s.events, Event{Kind: EventNoteOff, ID: id, Pitch: pitch})
}

func (s *Silent) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.voices)
	s.events = append(s.events, Event{Kind: EventStopAll})
}

func (s *Silent) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = clampVolume(v)
}

func (s *Silent) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Silent) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

func (s *Silent) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Silent) Enabled() bool {
	return s.enabled
}

func (s *Silent) Update() {}

func (s *Silent) Close() error {
	s.StopAll()
	return nil
}

// Events は記録したイベントのコピーを返す
func (s *Silent) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ActiveVoices は鳴っているはずのボイス数を返す
func (s *Silent) ActiveVoices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}
