package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/zurustar/keyfall/pkg/keyboard"
	"github.com/zurustar/keyfall/pkg/song"
	"github.com/zurustar/keyfall/pkg/timeline"
	"golang.org/x/image/font/basicfont"
)

var (
	backgroundColor = color.RGBA{0x14, 0x16, 0x1C, 0xFF}
	laneColor       = color.RGBA{0x22, 0x25, 0x2E, 0xFF}
	hitLineColor    = color.RGBA{0xE0, 0x40, 0x40, 0xFF}
	whiteKeyColor   = color.RGBA{0xF4, 0xF4, 0xF0, 0xFF}
	blackKeyColor   = color.RGBA{0x18, 0x18, 0x18, 0xFF}
	keyBorderColor  = color.RGBA{0x60, 0x60, 0x60, 0xFF}
	playbackColor   = color.RGBA{0x4C, 0xD9, 0x64, 0xFF}
	humanColor      = color.RGBA{0xFF, 0xD7, 0x40, 0xFF}
	progressBack    = color.RGBA{0x30, 0x33, 0x3D, 0xFF}
	progressFront   = color.RGBA{0x4C, 0xD9, 0x64, 0xFF}
	textColor       = color.White
	noticeColor     = color.RGBA{0xFF, 0xC0, 0x40, 0xFF}

	defaultFace = text.NewGoXFace(basicfont.Face7x13)
)

const (
	progressHeight = 6
	lineHeight     = 16
)

// HUD は画面に重ねて表示する情報
type HUD struct {
	Title        string
	FPS          float64
	NotesLoaded  int
	Volume       float64
	Muted        bool
	AudioEnabled bool
	Interactive  bool
	Debug        bool
	Notice       string
	// Hands は色分け方法の表示名（空なら表示しない）
	Hands string
}

var controls = []string{
	"SPACE play/pause  R restart  HOME stop  ESC quit",
	"UP/DOWN volume  LEFT/RIGHT speed  1-9 presets",
	"+/- zoom  M mute  H hands  PGUP/PGDN seek  O open",
}

// Renderer draws one frame. It holds only the static layout.
type Renderer struct {
	layout *KeyboardLayout
}

// NewRenderer はRendererを作成する
func NewRenderer(layout *KeyboardLayout) *Renderer {
	return &Renderer{layout: layout}
}

// Layout は鍵盤の配置を返す
func (r *Renderer) Layout() *KeyboardLayout {
	return r.layout
}

// HighlightColor は押されている鍵盤の色を返す
func HighlightColor(src keyboard.Source, hand song.Hand, showHands bool) color.RGBA {
	switch {
	case src&keyboard.SourceHuman != 0:
		return humanColor
	case src&keyboard.SourcePlayback != 0 && showHands && hand != song.HandUnknown:
		return HandColor(hand, true)
	default:
		return playbackColor
	}
}

// Draw renders the highway, the keyboard with highlights, the progress bar
// and the HUD.
func (r *Renderer) Draw(screen *ebiten.Image, frame timeline.Frame, kb *keyboard.State, view View, hud HUD) {
	screen.Fill(backgroundColor)

	r.drawLanes(screen)
	for _, b := range Project(frame, r.layout, view) {
		fillRect(screen, b.Rect, b.Color)
		strokeRect(screen, b.Rect, darken(b.Color))
	}
	top := float32(r.layout.KeyboardTop)
	vector.StrokeLine(screen, 0, top, float32(r.layout.Width), top, 2, hitLineColor, false)

	r.drawKeys(screen, kb, view)
	r.drawProgress(screen, frame)
	r.drawHUD(screen, frame, hud)
}

// drawLanes オクターブごとの区切り線（Cの左端）
func (r *Renderer) drawLanes(screen *ebiten.Image) {
	for _, k := range r.layout.WhiteKeys() {
		if k.Pitch%12 != 0 {
			continue
		}
		x := float32(k.Rect.X)
		vector.StrokeLine(screen, x, 0, x, float32(r.layout.KeyboardTop), 1, laneColor, false)
	}
}

func (r *Renderer) drawKeys(screen *ebiten.Image, kb *keyboard.State, view View) {
	for _, k := range r.layout.WhiteKeys() {
		fillRect(screen, k.Rect, r.keyColor(k, kb, view))
		strokeRect(screen, k.Rect, keyBorderColor)
	}
	for _, k := range r.layout.BlackKeys() {
		fillRect(screen, k.Rect, r.keyColor(k, kb, view))
	}
}

func (r *Renderer) keyColor(k Key, kb *keyboard.State, view View) color.RGBA {
	if kb != nil {
		if src := kb.Source(k.Pitch); src != 0 {
			hand, _ := kb.Hand(k.Pitch)
			return HighlightColor(src, hand, view.ShowHands)
		}
	}
	if k.Black {
		return blackKeyColor
	}
	return whiteKeyColor
}

func (r *Renderer) drawProgress(screen *ebiten.Image, frame timeline.Frame) {
	bar := Rect{X: 0, Y: 0, W: r.layout.Width, H: progressHeight}
	fillRect(screen, bar, progressBack)
	bar.W *= math.Min(1, frame.Progress())
	if bar.W > 0 {
		fillRect(screen, bar, progressFront)
	}
}

func (r *Renderer) drawHUD(screen *ebiten.Image, frame timeline.Frame, hud HUD) {
	lines := []string{
		hud.Title,
		fmt.Sprintf("%s / %s  speed x%.1f  %s", FormatTime(frame.Playhead), FormatTime(frame.Duration), frame.Rate, playState(frame)),
		volumeLine(hud) + handsLabel(hud),
	}
	if hud.Debug {
		lines = append(lines, fmt.Sprintf("FPS %.1f  notes %d  visible %d  sounding %d",
			hud.FPS, hud.NotesLoaded, len(frame.Visible), len(frame.Sounding)))
	}
	if hud.Interactive {
		lines = append(lines, "interactive: play with Z-M and Q-I rows or click keys")
	}
	lines = append(lines, controls...)

	y := float64(progressHeight + 6)
	for _, line := range lines {
		if line == "" {
			continue
		}
		drawText(screen, line, 10, y, textColor)
		y += lineHeight
	}

	if hud.Notice != "" {
		drawText(screen, hud.Notice, 10, r.layout.KeyboardTop-lineHeight-6, noticeColor)
	}
}

func playState(frame timeline.Frame) string {
	if frame.Paused {
		return "paused"
	}
	return "playing"
}

func volumeLine(hud HUD) string {
	switch {
	case !hud.AudioEnabled:
		return "audio unavailable"
	case hud.Muted:
		return "volume muted"
	default:
		return fmt.Sprintf("volume %d%%", int(math.Round(hud.Volume*100)))
	}
}

func handsLabel(hud HUD) string {
	if hud.Hands == "" {
		return ""
	}
	return "  hands " + hud.Hands
}

// FormatTime は秒を m:ss 形式にする
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func fillRect(dst *ebiten.Image, r Rect, c color.Color) {
	vector.DrawFilledRect(dst, float32(r.X), float32(r.Y), float32(r.W), float32(r.H), c, false)
}

func strokeRect(dst *ebiten.Image, r Rect, c color.Color) {
	vector.StrokeRect(dst, float32(r.X), float32(r.Y), float32(r.W), float32(r.H), 1, c, false)
}

func drawText(dst *ebiten.Image, s string, x, y float64, c color.Color) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(c)
	text.Draw(dst, s, defaultFace, op)
}
