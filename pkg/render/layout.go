// Package render projects the timeline state onto the screen: an 88-key
// keyboard along the bottom and falling note blocks above it.
package render

import (
	"github.com/zurustar/keyfall/pkg/keyboard"
)

// Rect は画面上の矩形（左上原点）
type Rect struct {
	X, Y, W, H float64
}

// Contains は点が矩形に含まれるかどうかを返す
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Key は1つの鍵盤の形状
type Key struct {
	Pitch int
	Black bool
	Rect  Rect
}

const (
	whiteKeyCount = 52

	blackWidthRatio  = 0.6
	blackHeightRatio = 0.62
)

// blackOffsets 黒鍵の中心を直前の白鍵の右端からずらす量（白鍵幅に対する比）
var blackOffsets = map[int]float64{
	1:  -0.1,  // C#
	3:  0.1,   // D#
	6:  -0.12, // F#
	8:  0,     // G#
	10: 0.12,  // A#
}

// IsBlack はピッチが黒鍵かどうかを返す
func IsBlack(pitch int) bool {
	_, ok := blackOffsets[((pitch%12)+12)%12]
	return ok
}

// KeyboardLayout is the static geometry of the 88 keys (A0 to C8) fitted to
// the screen width, with the keyboard occupying the bottom of the screen.
type KeyboardLayout struct {
	Width       float64
	Height      float64
	KeyboardTop float64
	WhiteWidth  float64

	keys [keyboard.KeyCount]Key
}

// NewKeyboardLayout は画面サイズと鍵盤の高さから鍵盤の配置を計算する
func NewKeyboardLayout(width, height, keyboardHeight float64) *KeyboardLayout {
	if keyboardHeight > height {
		keyboardHeight = height
	}
	l := &KeyboardLayout{
		Width:       width,
		Height:      height,
		KeyboardTop: height - keyboardHeight,
		WhiteWidth:  width / whiteKeyCount,
	}

	blackW := l.WhiteWidth * blackWidthRatio
	blackH := keyboardHeight * blackHeightRatio
	white := 0
	for p := keyboard.LowestKey; p <= keyboard.HighestKey; p++ {
		k := Key{Pitch: p, Black: IsBlack(p)}
		if k.Black {
			// 黒鍵は直前の白鍵の右端を基準に置く
			center := float64(white)*l.WhiteWidth + blackOffsets[p%12]*l.WhiteWidth
			k.Rect = Rect{X: center - blackW/2, Y: l.KeyboardTop, W: blackW, H: blackH}
		} else {
			k.Rect = Rect{X: float64(white) * l.WhiteWidth, Y: l.KeyboardTop, W: l.WhiteWidth, H: keyboardHeight}
			white++
		}
		l.keys[p-keyboard.LowestKey] = k
	}
	return l
}

// Key はピッチの鍵盤を返す
func (l *KeyboardLayout) Key(pitch int) (Key, bool) {
	if !keyboard.InRange(pitch) {
		return Key{}, false
	}
	return l.keys[pitch-keyboard.LowestKey], true
}

// Lane は音符ブロックを描く横方向の範囲（鍵盤の幅と同じ）
func (l *KeyboardLayout) Lane(pitch int) (x, w float64, ok bool) {
	k, ok := l.Key(pitch)
	if !ok {
		return 0, 0, false
	}
	return k.Rect.X, k.Rect.W, true
}

// WhiteKeys は白鍵を低い順に返す
func (l *KeyboardLayout) WhiteKeys() []Key {
	return l.filter(false)
}

// BlackKeys は黒鍵を低い順に返す
func (l *KeyboardLayout) BlackKeys() []Key {
	return l.filter(true)
}

func (l *KeyboardLayout) filter(black bool) []Key {
	var out []Key
	for _, k := range l.keys {
		if k.Black == black {
			out = append(out, k)
		}
	}
	return out
}

// PitchAt returns the key under a screen point. Black keys sit on top of
// white keys and win.
func (l *KeyboardLayout) PitchAt(x, y float64) (int, bool) {
	for _, k := range l.keys {
		if k.Black && k.Rect.Contains(x, y) {
			return k.Pitch, true
		}
	}
	for _, k := range l.keys {
		if !k.Black && k.Rect.Contains(x, y) {
			return k.Pitch, true
		}
	}
	return 0, false
}
