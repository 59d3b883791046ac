package render

import (
	"image/color"
	"math"

	"github.com/zurustar/keyfall/pkg/song"
	"github.com/zurustar/keyfall/pkg/timeline"
)

const (
	// DefaultPixelsPerSecond は落下速度の既定値（0.1 px/ms）
	DefaultPixelsPerSecond = 100.0
	MinPixelsPerSecond     = 40.0
	MaxPixelsPerSecond     = 800.0

	// MinBlockHeight は長さ0の音符でも見えるようにする最小の高さ
	MinBlockHeight = 2.0
)

var (
	rightHandColor = color.RGBA{0x3C, 0x8D, 0xFF, 0xFF}
	leftHandColor  = color.RGBA{0xFF, 0x9F, 0x1C, 0xFF}
	noHandColor    = color.RGBA{0x4A, 0x7F, 0xD8, 0xFF}
)

// View holds the stateless view parameters supplied by the caller each frame.
type View struct {
	// PixelsPerSecond はズーム（1秒あたりの落下距離）
	PixelsPerSecond float64
	// Scroll はハイウェイを下にずらす量（ピクセル）。先の音符が見える
	Scroll float64
	// ShowHands は左右の手で色分けするかどうか
	ShowHands bool
}

// DefaultView は既定の表示パラメータ
func DefaultView() View {
	return View{PixelsPerSecond: DefaultPixelsPerSecond, ShowHands: true}
}

func (v View) pps() float64 {
	if v.PixelsPerSecond <= 0 {
		return DefaultPixelsPerSecond
	}
	return v.PixelsPerSecond
}

// Lookahead は高さ highwayHeight のハイウェイを埋める先読み秒数
func (v View) Lookahead(highwayHeight float64) float64 {
	return math.Max(0, highwayHeight+v.Scroll) / v.pps()
}

// Block は描画する音符ブロック
type Block struct {
	Note  song.NoteEvent
	Rect  Rect
	Color color.RGBA
}

// HandColor は音符の色を返す
func HandColor(h song.Hand, showHands bool) color.RGBA {
	if !showHands {
		return noHandColor
	}
	switch h {
	case song.HandLeft:
		return leftHandColor
	case song.HandRight:
		return rightHandColor
	default:
		return noHandColor
	}
}

// darken は黒鍵のブロック用に色を暗くする
func darken(c color.RGBA) color.RGBA {
	return color.RGBA{uint8(float64(c.R) * 0.7), uint8(float64(c.G) * 0.7), uint8(float64(c.B) * 0.7), c.A}
}

// Project maps the visible notes of frame to rectangles above the keyboard.
// A note's bottom edge is its onset: it meets the top of the keyboard when
// the playhead reaches Start. Height is duration × PixelsPerSecond. Blocks
// are clipped to the highway; notes outside the 88 keys are skipped.
func Project(frame timeline.Frame, layout *KeyboardLayout, view View) []Block {
	pps := view.pps()
	hitY := layout.KeyboardTop + view.Scroll

	blocks := make([]Block, 0, len(frame.Visible))
	for _, n := range frame.Visible {
		x, w, ok := layout.Lane(n.Pitch)
		if !ok {
			continue
		}

		bottom := hitY - (n.Start-frame.Playhead)*pps
		top := hitY - (n.End()-frame.Playhead)*pps
		if bottom-top < MinBlockHeight {
			top = bottom - MinBlockHeight
		}

		top = math.Max(top, 0)
		bottom = math.Min(bottom, layout.KeyboardTop)
		if bottom <= top {
			continue
		}

		c := HandColor(n.Hand, view.ShowHands)
		if IsBlack(n.Pitch) {
			c = darken(c)
		}
		blocks = append(blocks, Block{
			Note:  n,
			Rect:  Rect{X: x, Y: top, W: w, H: bottom - top},
			Color: c,
		})
	}
	return blocks
}
