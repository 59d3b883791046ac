package session

import (
	"errors"
	"math"
	"testing"
	"testing/fstest"

	"github.com/zurustar/keyfall/pkg/fileutil"
	"github.com/zurustar/keyfall/pkg/keyboard"
	"github.com/zurustar/keyfall/pkg/render"
	"github.com/zurustar/keyfall/pkg/song"
	"github.com/zurustar/keyfall/pkg/sound"
)

const testHighway = 600

// twoNotes は C4(0〜1秒) と E4(0.5〜1.5秒) の曲
func twoNotes() *song.Song {
	return song.FromNotes([]song.NoteEvent{
		{Pitch: 60, Velocity: 100, Start: 0, Duration: 1},
		{Pitch: 64, Velocity: 80, Start: 0.5, Duration: 1},
	})
}

func onPitches(events []sound.Event) []int {
	var out []int
	for _, e := range events {
		if e.Kind == sound.EventNoteOn {
			out = append(out, e.Pitch)
		}
	}
	return out
}

func offPitches(events []sound.Event) []int {
	var out []int
	for _, e := range events {
		if e.Kind == sound.EventNoteOff {
			out = append(out, e.Pitch)
		}
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSession_TwoNotePlayback(t *testing.T) {
	out := sound.NewSilent(true)
	s := New(twoNotes(), out, testHighway)

	steps := []struct {
		name     string
		dt       float64
		cmds     []Command
		pressed  []int
		ons      []int
		offs     []int
		playhead float64
	}{
		{"再生開始で0秒の音が鳴る", 0, []Command{Do(CmdPlayPause)}, []int{60}, []int{60}, nil, 0},
		{"0.25秒", 0.25, nil, []int{60}, []int{60}, nil, 0.25},
		{"0.75秒で2音目", 0.5, nil, []int{60, 64}, []int{60, 64}, nil, 0.75},
		{"1.25秒で1音目が終わる", 0.5, nil, []int{64}, []int{60, 64}, []int{60}, 1.25},
		{"最後まで再生", 1, nil, nil, []int{60, 64}, []int{60, 64}, 1.5},
	}

	for _, st := range steps {
		frame := s.Step(st.dt, st.cmds)
		if math.Abs(frame.Playhead-st.playhead) > 1e-9 {
			t.Errorf("%s: playhead = %v, want %v", st.name, frame.Playhead, st.playhead)
		}
		if got := s.Keyboard().PressedPitches(); !equalInts(got, st.pressed) {
			t.Errorf("%s: pressed = %v, want %v", st.name, got, st.pressed)
		}
		if got := onPitches(out.Events()); !equalInts(got, st.ons) {
			t.Errorf("%s: ons = %v, want %v", st.name, got, st.ons)
		}
		if got := offPitches(out.Events()); !equalInts(got, st.offs) {
			t.Errorf("%s: offs = %v, want %v", st.name, got, st.offs)
		}
	}

	if !s.Frame().Paused {
		t.Error("playback did not pause at the end of the song")
	}
	if !s.Finished() {
		t.Error("session not finished")
	}

	// 最後で再生すると先頭から
	frame := s.Step(0.1, []Command{Do(CmdPlayPause)})
	if frame.Paused || frame.Playhead > 0.2 {
		t.Errorf("play at end: paused=%v playhead=%v", frame.Paused, frame.Playhead)
	}
}

func TestSession_Commands(t *testing.T) {
	tests := []struct {
		name  string
		cmds  []Command
		check func(t *testing.T, s *Session, out *sound.Silent)
	}{
		{
			name: "音量を上げ下げする",
			cmds: []Command{Do(CmdVolumeDown), Do(CmdVolumeDown), Do(CmdVolumeDown), Do(CmdVolumeUp)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if v := out.Volume(); math.Abs(v-0.8) > 1e-9 {
					t.Errorf("volume = %v, want 0.8", v)
				}
			},
		},
		{
			name: "音量は1を超えない",
			cmds: []Command{Do(CmdVolumeUp), Do(CmdVolumeUp)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if v := out.Volume(); v != 1 {
					t.Errorf("volume = %v, want 1", v)
				}
			},
		},
		{
			name: "速度を上げる",
			cmds: []Command{Do(CmdSpeedUp), Do(CmdSpeedUp)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if r := s.Frame().Rate; math.Abs(r-1.2) > 1e-9 {
					t.Errorf("rate = %v, want 1.2", r)
				}
			},
		},
		{
			name: "速度の下限",
			cmds: []Command{SpeedPreset(1), Do(CmdSpeedDown), Do(CmdSpeedDown), Do(CmdSpeedDown)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if r := s.Frame().Rate; math.Abs(r-0.1) > 1e-9 {
					t.Errorf("rate = %v, want 0.1", r)
				}
			},
		},
		{
			name: "プリセット9は3倍速",
			cmds: []Command{SpeedPreset(9)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if r := s.Frame().Rate; r != 3 {
					t.Errorf("rate = %v, want 3", r)
				}
			},
		},
		{
			name: "範囲外のプリセットは無視",
			cmds: []Command{SpeedPreset(0), SpeedPreset(10)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if r := s.Frame().Rate; r != 1 {
					t.Errorf("rate = %v, want 1", r)
				}
			},
		},
		{
			name: "ズームイン",
			cmds: []Command{Do(CmdZoomIn)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if pps := s.View().PixelsPerSecond; math.Abs(pps-125) > 1e-9 {
					t.Errorf("pps = %v, want 125", pps)
				}
			},
		},
		{
			name: "ズームアウトは下限で止まる",
			cmds: []Command{Do(CmdZoomOut), Do(CmdZoomOut), Do(CmdZoomOut), Do(CmdZoomOut), Do(CmdZoomOut)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if pps := s.View().PixelsPerSecond; pps != render.MinPixelsPerSecond {
					t.Errorf("pps = %v, want %v", pps, render.MinPixelsPerSecond)
				}
			},
		},
		{
			name: "ズームで先読み時間が変わる",
			cmds: []Command{Do(CmdZoomIn)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if la := s.Frame().Lookahead; math.Abs(la-testHighway/125.0) > 1e-9 {
					t.Errorf("lookahead = %v, want %v", la, testHighway/125.0)
				}
			},
		},
		{
			name: "スクロールは0未満にならない",
			cmds: []Command{Scroll(50), Scroll(-80)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if sc := s.View().Scroll; sc != 0 {
					t.Errorf("scroll = %v, want 0", sc)
				}
			},
		},
		{
			name: "ミュート切り替え",
			cmds: []Command{Do(CmdToggleMute)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if !out.Muted() {
					t.Error("not muted")
				}
			},
		},
		{
			name: "手の色分けを音高で",
			cmds: []Command{Do(CmdToggleHands)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if s.Hands() != HandsByPitch || !s.View().ShowHands {
					t.Errorf("hands = %v shown=%v, want pitch shown", s.Hands(), s.View().ShowHands)
				}
			},
		},
		{
			name: "1チャンネルの曲ではチャンネル分けを飛ばす",
			cmds: []Command{Do(CmdToggleHands), Do(CmdToggleHands)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if s.Hands() != HandsOff || s.View().ShowHands {
					t.Errorf("hands = %v shown=%v, want off hidden", s.Hands(), s.View().ShowHands)
				}
			},
		},
		{
			name: "停止で手弾きの音も止める",
			cmds: []Command{LivePress(48), Do(CmdStop)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if got := s.Keyboard().HumanPitches(); len(got) != 0 {
					t.Errorf("human keys = %v, want none", got)
				}
				if out.ActiveVoices() != 0 {
					t.Errorf("voices = %d, want 0", out.ActiveVoices())
				}
			},
		},
		{
			name: "相対シーク",
			cmds: []Command{SeekRelative(0.75), SeekRelative(-0.5)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if p := s.Frame().Playhead; math.Abs(p-0.25) > 1e-9 {
					t.Errorf("playhead = %v, want 0.25", p)
				}
				if got := s.Keyboard().PressedPitches(); !equalInts(got, []int{60}) {
					t.Errorf("pressed = %v, want [60]", got)
				}
			},
		},
		{
			name: "終了",
			cmds: []Command{Do(CmdQuit)},
			check: func(t *testing.T, s *Session, out *sound.Silent) {
				if !s.Quitting() {
					t.Error("not quitting")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := sound.NewSilent(true)
			s := New(twoNotes(), out, testHighway)
			s.Step(0, tt.cmds)
			tt.check(t, s, out)
		})
	}
}

func TestSession_SeekSilencesNotes(t *testing.T) {
	out := sound.NewSilent(true)
	s := New(twoNotes(), out, testHighway)
	s.Step(0.75, []Command{Do(CmdPlayPause)})

	s.Step(0, []Command{Seek(1.4)})
	if got := s.Keyboard().PressedPitches(); !equalInts(got, []int{64}) {
		t.Errorf("pressed = %v, want [64]", got)
	}
	if out.ActiveVoices() != 1 {
		t.Errorf("voices = %d, want 1", out.ActiveVoices())
	}

	s.Step(0, []Command{Do(CmdStop)})
	if out.ActiveVoices() != 0 {
		t.Errorf("voices after stop = %d, want 0", out.ActiveVoices())
	}
	if !s.Frame().Paused || s.Frame().Playhead != 0 {
		t.Errorf("after stop: paused=%v playhead=%v", s.Frame().Paused, s.Frame().Playhead)
	}
}

func TestSession_LiveKeys(t *testing.T) {
	out := sound.NewSilent(true)
	s := New(song.Empty(), out, testHighway)

	s.Step(0, []Command{LivePress(60), LivePress(60)})
	if src := s.Keyboard().Source(60); src&keyboard.SourceHuman == 0 {
		t.Error("pitch 60 not pressed by human")
	}
	events := out.Events()
	if len(events) != 1 || events[0].Velocity != LiveVelocity || events[0].ID >= 0 {
		t.Fatalf("events = %+v", events)
	}

	s.Step(0, []Command{LiveRelease(60), LiveRelease(60)})
	if s.Keyboard().Pressed(60) {
		t.Error("pitch 60 still pressed")
	}
	if got := offPitches(out.Events()); !equalInts(got, []int{60}) {
		t.Errorf("offs = %v, want [60]", got)
	}
}

func TestSession_LiveKeyDuringPlayback(t *testing.T) {
	out := sound.NewSilent(true)
	s := New(twoNotes(), out, testHighway)
	s.Step(0, []Command{Do(CmdPlayPause), LivePress(60)})

	src := s.Keyboard().Source(60)
	if src != keyboard.SourcePlayback|keyboard.SourceHuman {
		t.Errorf("source = %v, want playback|human", src)
	}

	// 曲の音が終わっても人が押している間は押下状態
	s.Step(1.1, nil)
	if !s.Keyboard().Pressed(60) {
		t.Error("human press lost when playback note ended")
	}
	if out.ActiveVoices() != 2 {
		t.Errorf("voices = %d, want 2 (live C4 and E4)", out.ActiveVoices())
	}
}

func TestSession_LoadSong(t *testing.T) {
	out := sound.NewSilent(true)
	s := New(twoNotes(), out, testHighway)
	s.Step(0.25, []Command{Do(CmdPlayPause)})

	next := song.FromNotes([]song.NoteEvent{{Pitch: 72, Velocity: 90, Start: 0, Duration: 2}})
	frame := s.Step(0, []Command{LoadSong(next)})

	if got := offPitches(out.Events()); !equalInts(got, []int{60}) {
		t.Errorf("offs = %v, want [60]", got)
	}
	if frame.Duration != 2 {
		t.Errorf("duration = %v, want 2", frame.Duration)
	}
	if got := s.Keyboard().PressedPitches(); !equalInts(got, []int{72}) {
		t.Errorf("pressed = %v, want [72]", got)
	}
	if s.Song() != next {
		t.Error("song not replaced")
	}
}

func TestSession_HandModes(t *testing.T) {
	// チャンネル0が高音、チャンネル1が低音だが、どちらも中央のCをまたぐ
	src := song.FromNotes([]song.NoteEvent{
		{Pitch: 55, Velocity: 100, Start: 0, Duration: 2, Channel: 0, Hand: song.HandRight},
		{Pitch: 72, Velocity: 100, Start: 0, Duration: 2, Channel: 0, Hand: song.HandRight},
		{Pitch: 64, Velocity: 100, Start: 0, Duration: 2, Channel: 1, Hand: song.HandLeft},
	})
	s := New(src, sound.NewSilent(true), testHighway)
	s.Step(0.5, []Command{Do(CmdPlayPause)})

	handOf := func(pitch int) song.Hand {
		h, _ := s.Keyboard().Hand(pitch)
		return h
	}

	tests := []struct {
		name string
		mode HandMode
		want map[int]song.Hand
	}{
		{"音高で分ける", HandsByPitch, map[int]song.Hand{55: song.HandLeft, 64: song.HandRight, 72: song.HandRight}},
		{"チャンネルで分ける", HandsByChannel, map[int]song.Hand{55: song.HandLeft, 64: song.HandRight, 72: song.HandLeft}},
		{"色分けなし", HandsOff, map[int]song.Hand{55: song.HandRight, 64: song.HandLeft, 72: song.HandRight}},
		{"読み込み時の判定に戻る", HandsAuto, map[int]song.Hand{55: song.HandRight, 64: song.HandLeft, 72: song.HandRight}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := s.Step(0, []Command{Do(CmdToggleHands)})
			if s.Hands() != tt.mode {
				t.Fatalf("mode = %v, want %v", s.Hands(), tt.mode)
			}
			if frame.Playhead != 0.5 || len(frame.Sounding) != 3 {
				t.Errorf("playback disturbed: playhead %v, sounding %d", frame.Playhead, len(frame.Sounding))
			}
			for pitch, want := range tt.want {
				if got := handOf(pitch); got != want {
					t.Errorf("hand(%d) = %v, want %v", pitch, got, want)
				}
			}
		})
	}
}

func TestSession_LoadSongReleasesLiveKeys(t *testing.T) {
	out := sound.NewSilent(true)
	s := New(twoNotes(), out, testHighway)
	s.Step(0, []Command{LivePress(50)})

	s.Step(0, []Command{LoadSong(song.Empty())})
	if s.Keyboard().Pressed(50) {
		t.Error("live key still pressed after loading a song")
	}
	if got := offPitches(out.Events()); !equalInts(got, []int{50}) {
		t.Errorf("offs = %v, want [50]", got)
	}
}

type fakePlayer struct{ closed bool }

func (p *fakePlayer) Play() {}
func (p *fakePlayer) IsPlaying() bool { return !p.closed }
func (p *fakePlayer) SetVolume(float64) {}
func (p *fakePlayer) Close() error { p.closed = true; return nil }

func TestSession_MissingSample(t *testing.T) {
	// piano_60.wav がないのでC4は生成音で代用される
	assets := fileutil.NewFS(fstest.MapFS{}, ".")
	tone := sound.NewToneVoicer(sound.SampleRate)
	tone.Seconds = 0.05
	bank := sound.NewSampleBank(assets, sound.SampleRate, tone)

	var players int
	mixer := sound.NewMixerWithFactory(bank, func([]byte) sound.Player {
		players++
		return &fakePlayer{}
	}, nil)

	s := New(twoNotes(), mixer, testHighway)
	frame := s.Step(0.25, []Command{Do(CmdPlayPause)})

	if players != 1 {
		t.Errorf("players = %d, want 1", players)
	}
	if len(frame.Visible) != 2 {
		t.Errorf("visible = %d, want 2", len(frame.Visible))
	}
	if !s.Keyboard().Pressed(60) {
		t.Error("C4 not highlighted")
	}
	if !errors.Is(bank.Missing()[60], sound.ErrMissingAsset) {
		t.Errorf("missing[60] = %v", bank.Missing()[60])
	}
}

// readCounter はファイルアクセスの回数を数える
type readCounter struct {
	fileutil.FileSystem
	reads int
}

func (c *readCounter) ReadFile(name string) ([]byte, error) {
	c.reads++
	return c.FileSystem.ReadFile(name)
}

func (c *readCounter) FindFile(name string) (string, error) {
	c.reads++
	return c.FileSystem.FindFile(name)
}

func TestSession_NoFileAccessDuringPlayback(t *testing.T) {
	assets := &readCounter{FileSystem: fileutil.NewFS(fstest.MapFS{}, ".")}
	tone := sound.NewToneVoicer(sound.SampleRate)
	tone.Seconds = 0.01
	bank := sound.NewSampleBank(assets, sound.SampleRate, tone)
	bank.Preload()
	assets.reads = 0

	var players int
	mixer := sound.NewMixerWithFactory(bank, func([]byte) sound.Player {
		players++
		return &fakePlayer{}
	}, nil)

	// 88鍵の外の音高を含む曲
	s := New(song.FromNotes([]song.NoteEvent{
		{Pitch: 5, Velocity: 100, Start: 0, Duration: 1},
		{Pitch: 60, Velocity: 100, Start: 0, Duration: 1},
		{Pitch: 120, Velocity: 100, Start: 0.5, Duration: 1},
	}), mixer, testHighway)

	s.Step(0.25, []Command{Do(CmdPlayPause)})
	for i := 0; i < 10; i++ {
		s.Step(0.25, nil)
	}

	if assets.reads != 0 {
		t.Errorf("file reads during playback = %d, want 0", assets.reads)
	}
	if players != 1 {
		t.Errorf("players = %d, want 1 (only the in-range note)", players)
	}
}

func TestSession_AudioUnavailable(t *testing.T) {
	bank := sound.NewSampleBank(nil, sound.SampleRate, sound.NewToneVoicer(sound.SampleRate))
	mixer := sound.NewMixerWithFactory(bank, func([]byte) sound.Player {
		return &fakePlayer{}
	}, func() error { return errors.New("no audio device") })

	s := New(twoNotes(), mixer, testHighway)
	frame := s.Step(0.75, []Command{Do(CmdPlayPause)})

	if mixer.Enabled() {
		t.Error("mixer still enabled")
	}
	if frame.Playhead != 0.75 {
		t.Errorf("playhead = %v, want 0.75", frame.Playhead)
	}
	if got := s.Keyboard().PressedPitches(); !equalInts(got, []int{60, 64}) {
		t.Errorf("pressed = %v, want [60 64]", got)
	}
}

func TestSpeedForPreset(t *testing.T) {
	want := []float64{0.25, 0.5, 0.75, 1.0, 1.25, 1.5, 2.0, 2.5, 3.0}
	for i, w := range want {
		got, ok := SpeedForPreset(i + 1)
		if !ok || got != w {
			t.Errorf("SpeedForPreset(%d) = %v, %v; want %v", i+1, got, ok, w)
		}
	}
}

func TestCommandKindString(t *testing.T) {
	if CmdPlayPause.String() != "play-pause" || CommandKind(99).String() != "unknown" {
		t.Error("unexpected command names")
	}
}
