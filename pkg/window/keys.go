package window

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/zurustar/keyfall/pkg/session"
)

// liveKeys はPCキーボードから弾けるピッチ（下段 Z〜/ がC3〜、上段 Q〜I がC4〜）
var liveKeys = map[ebiten.Key]int{
	ebiten.KeyZ:         48,
	ebiten.KeyS:         49,
	ebiten.KeyX:         50,
	ebiten.KeyD:         51,
	ebiten.KeyC:         52,
	ebiten.KeyV:         53,
	ebiten.KeyG:         54,
	ebiten.KeyB:         55,
	ebiten.KeyH:         56,
	ebiten.KeyN:         57,
	ebiten.KeyJ:         58,
	ebiten.KeyM:         59,
	ebiten.KeyComma:     60,
	ebiten.KeyL:         61,
	ebiten.KeyPeriod:    62,
	ebiten.KeySemicolon: 63,
	ebiten.KeySlash:     64,
	ebiten.KeyQ:         60,
	ebiten.KeyDigit2:    61,
	ebiten.KeyW:         62,
	ebiten.KeyDigit3:    63,
	ebiten.KeyE:         64,
	ebiten.KeyR:         65,
	ebiten.KeyDigit5:    66,
	ebiten.KeyT:         67,
	ebiten.KeyDigit6:    68,
	ebiten.KeyY:         69,
	ebiten.KeyDigit7:    70,
	ebiten.KeyU:         71,
	ebiten.KeyI:         72,
}

var controlKeys = map[ebiten.Key]session.Command{
	ebiten.KeySpace:          session.Do(session.CmdPlayPause),
	ebiten.KeyR:              session.Do(session.CmdRestart),
	ebiten.KeyEscape:         session.Do(session.CmdQuit),
	ebiten.KeyArrowUp:        session.Do(session.CmdVolumeUp),
	ebiten.KeyArrowDown:      session.Do(session.CmdVolumeDown),
	ebiten.KeyArrowLeft:      session.Do(session.CmdSpeedDown),
	ebiten.KeyArrowRight:     session.Do(session.CmdSpeedUp),
	ebiten.KeyEqual:          session.Do(session.CmdZoomIn),
	ebiten.KeyNumpadAdd:      session.Do(session.CmdZoomIn),
	ebiten.KeyMinus:          session.Do(session.CmdZoomOut),
	ebiten.KeyNumpadSubtract: session.Do(session.CmdZoomOut),
	ebiten.KeyM:              session.Do(session.CmdToggleMute),
	ebiten.KeyH:              session.Do(session.CmdToggleHands),
	ebiten.KeyPageUp:         session.SeekRelative(session.SeekStep),
	ebiten.KeyPageDown:       session.SeekRelative(-session.SeekStep),
	ebiten.KeyHome:           session.Do(session.CmdStop),
	ebiten.KeyDigit1:         session.SpeedPreset(1),
	ebiten.KeyDigit2:         session.SpeedPreset(2),
	ebiten.KeyDigit3:         session.SpeedPreset(3),
	ebiten.KeyDigit4:         session.SpeedPreset(4),
	ebiten.KeyDigit5:         session.SpeedPreset(5),
	ebiten.KeyDigit6:         session.SpeedPreset(6),
	ebiten.KeyDigit7:         session.SpeedPreset(7),
	ebiten.KeyDigit8:         session.SpeedPreset(8),
	ebiten.KeyDigit9:         session.SpeedPreset(9),
}

// openKey はファイル選択ダイアログを開くキー
const openKey = ebiten.KeyO

// LivePitch は鍵盤として使うキーのピッチを返す
func LivePitch(k ebiten.Key) (int, bool) {
	p, ok := liveKeys[k]
	return p, ok
}

// actions is the result of translating one frame of input.
type actions struct {
	cmds []session.Command
	open bool
}

// translateKeys maps the keys pressed and released this frame to commands.
// With live enabled, keys that play a pitch shadow any control bound to the
// same key.
func translateKeys(pressed, released []ebiten.Key, live bool) actions {
	var a actions
	for _, k := range pressed {
		if live {
			if p, ok := liveKeys[k]; ok {
				a.cmds = append(a.cmds, session.LivePress(p))
				continue
			}
		}
		if k == openKey {
			a.open = true
			continue
		}
		if c, ok := controlKeys[k]; ok {
			a.cmds = append(a.cmds, c)
		}
	}
	if live {
		for _, k := range released {
			if p, ok := liveKeys[k]; ok {
				a.cmds = append(a.cmds, session.LiveRelease(p))
			}
		}
	}
	return a
}

// mouseKey tracks the key held down with the mouse. Dragging onto another
// key releases the previous one.
type mouseKey struct {
	pitch int
	held  bool
}

func (m *mouseKey) update(pitch int, onKey, down bool) []session.Command {
	var cmds []session.Command
	if m.held && (!down || !onKey || pitch != m.pitch) {
		cmds = append(cmds, session.LiveRelease(m.pitch))
		m.held = false
	}
	if down && onKey && !m.held {
		cmds = append(cmds, session.LivePress(pitch))
		m.pitch = pitch
		m.held = true
	}
	return cmds
}
