// Package session owns everything one playing song needs: the scheduler,
// the keyboard state, the sound output and the view parameters.
package session

import (
	"errors"
	"log/slog"
	"math"

	"github.com/zurustar/keyfall/pkg/keyboard"
	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/render"
	"github.com/zurustar/keyfall/pkg/song"
	"github.com/zurustar/keyfall/pkg/sound"
	"github.com/zurustar/keyfall/pkg/timeline"
)

const (
	VolumeStep   = 0.1
	SpeedStep    = 0.1
	ZoomFactor   = 1.25
	SeekStep     = 5.0
	LiveVelocity = 100
)

// speedPresets は数字キー1〜9に対応する再生速度
var speedPresets = [...]float64{0.25, 0.5, 0.75, 1.0, 1.25, 1.5, 2.0, 2.5, 3.0}

// SpeedForPreset returns the rate for preset n (1-9).
func SpeedForPreset(n int) (float64, bool) {
	if n < 1 || n > len(speedPresets) {
		return 0, false
	}
	return speedPresets[n-1], true
}

// Session drives one song. It is not safe for concurrent use; the frame
// loop owns it.
type Session struct {
	sched *timeline.Scheduler
	kb    *keyboard.State
	out   sound.Output
	view  render.View

	// source は読み込んだままの曲。hands に従って手を付け直したものを再生する
	source *song.Song
	hands  HandMode

	highway float64
	frame   timeline.Frame
	quit    bool

	audioWarned bool
	log         *slog.Logger
}

// New creates a paused session. highwayHeight is the height in pixels of the
// falling-note area and determines how far ahead Step looks.
func New(s *song.Song, out sound.Output, highwayHeight float64) *Session {
	if out == nil {
		out = sound.NewSilent(false)
	}
	ss := &Session{
		sched:   timeline.New(s),
		kb:      keyboard.New(),
		out:     out,
		view:    render.DefaultView(),
		highway: highwayHeight,
		log:     logger.Component("session"),
	}
	ss.source = ss.sched.Song()
	ss.frame = ss.sched.Query(ss.view.Lookahead(ss.highway))
	return ss
}

// Step applies the commands, advances the playhead by dt seconds of wall
// time, dispatches the crossed signals to the output and returns the frame
// to render.
func (s *Session) Step(dt float64, cmds []Command) timeline.Frame {
	var sigs []timeline.Signal
	for _, c := range cmds {
		sigs = append(sigs, s.apply(c)...)
	}

	sigs = append(sigs, s.sched.Advance(dt)...)
	if !s.sched.Paused() && s.sched.Finished() {
		s.sched.Pause()
		s.log.Info("Playback finished", "duration", s.sched.Song().Duration)
	}

	s.dispatch(sigs)
	s.frame = s.sched.Query(s.view.Lookahead(s.highway))
	s.kb.SetPlayback(s.frame.Sounding)
	s.out.Update()
	return s.frame
}

func (s *Session) apply(c Command) []timeline.Signal {
	s.log.Debug("Command", "kind", c.Kind)

	switch c.Kind {
	case CmdPlayPause:
		if s.sched.Paused() && s.sched.Finished() {
			sigs := s.sched.Seek(0)
			s.sched.Resume()
			return sigs
		}
		s.sched.TogglePause()
	case CmdRestart:
		return s.sched.Restart()
	case CmdStop:
		s.releaseLiveKeys()
		return s.sched.Stop()
	case CmdVolumeUp:
		s.out.SetVolume(roundTenth(s.out.Volume() + VolumeStep))
	case CmdVolumeDown:
		s.out.SetVolume(roundTenth(s.out.Volume() - VolumeStep))
	case CmdSpeedUp:
		s.sched.SetRate(roundTenth(s.sched.Rate() + SpeedStep))
	case CmdSpeedDown:
		s.sched.SetRate(roundTenth(s.sched.Rate() - SpeedStep))
	case CmdSpeedPreset:
		if r, ok := SpeedForPreset(c.N); ok {
			s.sched.SetRate(r)
		}
	case CmdZoomIn:
		s.setZoom(s.view.PixelsPerSecond * ZoomFactor)
	case CmdZoomOut:
		s.setZoom(s.view.PixelsPerSecond / ZoomFactor)
	case CmdScroll:
		s.view.Scroll = math.Max(0, math.Min(s.highway, s.view.Scroll+c.Value))
	case CmdToggleMute:
		s.out.SetMuted(!s.out.Muted())
	case CmdToggleHands:
		s.cycleHands()
	case CmdSeek:
		return s.sched.Seek(c.Value)
	case CmdSeekRelative:
		return s.sched.Seek(s.sched.Playhead() + c.Value)
	case CmdLivePress:
		if s.kb.Press(c.N) {
			s.noteOn(liveID(c.N), c.N, LiveVelocity)
		}
	case CmdLiveRelease:
		if s.kb.Release(c.N) {
			s.out.NoteOff(liveID(c.N))
		}
	case CmdLoadSong:
		s.releaseLiveKeys()
		s.source = c.Song
		if s.source == nil {
			s.source = song.Empty()
		}
		sigs := s.sched.Load(applyHands(s.hands, s.source))
		s.log.Info("Song loaded", "name", s.sched.Song().Meta.Name, "notes", len(s.sched.Song().Notes))
		return sigs
	case CmdQuit:
		s.quit = true
	}
	return nil
}

func (s *Session) dispatch(sigs []timeline.Signal) {
	for _, sig := range sigs {
		switch sig.Kind {
		case timeline.NoteOn:
			s.noteOn(sig.Note.ID, sig.Note.Pitch, sig.Note.Velocity)
		case timeline.NoteOff:
			s.out.NoteOff(sig.Note.ID)
		}
	}
}

func (s *Session) noteOn(id, pitch, velocity int) {
	err := s.out.NoteOn(id, pitch, velocity)
	switch {
	case err == nil:
	case errors.Is(err, sound.ErrAudioUnavailable):
		if !s.audioWarned {
			s.audioWarned = true
			s.log.Warn("Continuing without audio", "error", err)
		}
	default:
		s.log.Debug("Note not played", "pitch", pitch, "error", err)
	}
}

// releaseLiveKeys は手で押している音を止めて鍵盤の状態を初期化する
func (s *Session) releaseLiveKeys() {
	for _, p := range s.kb.HumanPitches() {
		s.out.NoteOff(liveID(p))
	}
	s.kb.Reset()
}

func (s *Session) cycleHands() {
	s.hands = nextHandMode(s.hands, s.source)
	s.view.ShowHands = s.hands != HandsOff

	tagged := applyHands(s.hands, s.source)
	if !s.sched.Retag(tagged) {
		s.log.Warn("Hand tags not applied", "mode", s.hands)
		return
	}
	s.log.Info("Hand colors",
		"mode", s.hands,
		"left", len(tagged.NotesByHand(song.HandLeft)),
		"right", len(tagged.NotesByHand(song.HandRight)))
}

func (s *Session) setZoom(pps float64) {
	s.view.PixelsPerSecond = math.Max(render.MinPixelsPerSecond, math.Min(render.MaxPixelsPerSecond, pps))
}

// liveID は鍵盤から弾いた音のボイスID。曲の音符ID（0以上）と重ならない
func liveID(pitch int) int {
	return -1 - pitch
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// Frame は直近の Step の結果を返す
func (s *Session) Frame() timeline.Frame { return s.frame }

func (s *Session) Keyboard() *keyboard.State { return s.kb }

func (s *Session) View() render.View { return s.view }

// Hands は現在の色分け方法を返す
func (s *Session) Hands() HandMode { return s.hands }

func (s *Session) Output() sound.Output { return s.out }

func (s *Session) Song() *song.Song { return s.sched.Song() }

// Quitting は Quit コマンドを受け取ったかどうかを返す
func (s *Session) Quitting() bool { return s.quit }

// Finished は曲の最後まで再生したかどうかを返す
func (s *Session) Finished() bool { return s.sched.Finished() }

// Close は発音中の音をすべて止めて出力を閉じる
func (s *Session) Close() error {
	s.dispatch(s.sched.Stop())
	return s.out.Close()
}
