package session

import "github.com/zurustar/keyfall/pkg/song"

// CommandKind はユーザー操作の種類
type CommandKind int

const (
	CmdPlayPause CommandKind = iota
	CmdRestart
	CmdStop
	CmdVolumeUp
	CmdVolumeDown
	CmdSpeedUp
	CmdSpeedDown
	CmdSpeedPreset
	CmdZoomIn
	CmdZoomOut
	CmdScroll
	CmdToggleMute
	CmdToggleHands
	CmdSeek
	CmdSeekRelative
	CmdLivePress
	CmdLiveRelease
	CmdLoadSong
	CmdQuit
)

var commandNames = map[CommandKind]string{
	CmdPlayPause:    "play-pause",
	CmdRestart:      "restart",
	CmdStop:         "stop",
	CmdVolumeUp:     "volume-up",
	CmdVolumeDown:   "volume-down",
	CmdSpeedUp:      "speed-up",
	CmdSpeedDown:    "speed-down",
	CmdSpeedPreset:  "speed-preset",
	CmdZoomIn:       "zoom-in",
	CmdZoomOut:      "zoom-out",
	CmdScroll:       "scroll",
	CmdToggleMute:   "toggle-mute",
	CmdToggleHands:  "toggle-hands",
	CmdSeek:         "seek",
	CmdSeekRelative: "seek-relative",
	CmdLivePress:    "live-press",
	CmdLiveRelease:  "live-release",
	CmdLoadSong:     "load-song",
	CmdQuit:         "quit",
}

func (k CommandKind) String() string {
	if s, ok := commandNames[k]; ok {
		return s
	}
	return "unknown"
}

// Command is one user action applied between frames.
type Command struct {
	Kind CommandKind
	// Value は Seek の時刻、SeekRelative の移動量、Scroll のピクセル数
	Value float64
	// N は SpeedPreset の番号（1〜9）または LivePress/LiveRelease のピッチ
	N    int
	Song *song.Song
}

func Do(kind CommandKind) Command { return Command{Kind: kind} }

func Seek(t float64) Command { return Command{Kind: CmdSeek, Value: t} }

func SeekRelative(d float64) Command { return Command{Kind: CmdSeekRelative, Value: d} }

func Scroll(px float64) Command { return Command{Kind: CmdScroll, Value: px} }

func SpeedPreset(n int) Command { return Command{Kind: CmdSpeedPreset, N: n} }

func LivePress(pitch int) Command { return Command{Kind: CmdLivePress, N: pitch} }

func LiveRelease(pitch int) Command { return Command{Kind: CmdLiveRelease, N: pitch} }

func LoadSong(s *song.Song) Command { return Command{Kind: CmdLoadSong, Song: s} }
