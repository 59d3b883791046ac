// Package window runs the frame loop: it polls input, steps the session and
// draws the result, either in an ebiten window or headless.
package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/render"
	"github.com/zurustar/keyfall/pkg/session"
	"github.com/zurustar/keyfall/pkg/timeline"
)

const (
	// DefaultTPS はフレームループの既定の更新回数
	DefaultTPS = 60

	noticeDuration = 4 * time.Second
	wheelScroll    = 40.0
)

// Options configures the window.
type Options struct {
	Width       int
	Height      int
	Interactive bool
	Debug       bool
	// Timeout が0より大きい場合、その時間で終了する
	Timeout time.Duration
	// Dialog はOキーで開くファイル選択。nil の場合は SystemFileDialog
	Dialog FileDialog
}

// KeyboardHeight は画面の高さに対する鍵盤の高さ
func KeyboardHeight(height int) float64 {
	return math.Max(60, math.Round(float64(height)*0.18))
}

// NewLayout は画面サイズに合わせた鍵盤配置を作成する
func NewLayout(width, height int) *render.KeyboardLayout {
	return render.NewKeyboardLayout(float64(width), float64(height), KeyboardHeight(height))
}

// Game implements ebiten.Game for one session.
type Game struct {
	session  *session.Session
	renderer *render.Renderer
	loader   *Loader
	opts     Options

	frame     timeline.Frame
	mouse     mouseKey
	notice    string
	noticeEnd time.Time
	startTime time.Time

	log *slog.Logger
}

// NewGame Gameを作成
func NewGame(s *session.Session, opts Options) *Game {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1200, 800
	}
	if opts.Dialog == nil {
		opts.Dialog = SystemFileDialog
	}
	return &Game{
		session:   s,
		renderer:  render.NewRenderer(NewLayout(opts.Width, opts.Height)),
		loader:    NewLoader(),
		opts:      opts,
		frame:     s.Frame(),
		startTime: time.Now(),
		log:       logger.Component("window"),
	}
}

// Update ゲームロジックの更新（Ebitengineが毎フレーム呼び出す）
func (g *Game) Update() error {
	if g.opts.Timeout > 0 && time.Since(g.startTime) >= g.opts.Timeout {
		g.log.Info("Timeout reached, terminating")
		return ebiten.Termination
	}

	a := translateKeys(inpututil.AppendJustPressedKeys(nil), inpututil.AppendJustReleasedKeys(nil), g.opts.Interactive)
	cmds := a.cmds
	if a.open {
		g.openDialog()
	}
	cmds = append(cmds, g.pollMouse()...)

	if dropped := ebiten.DroppedFiles(); dropped != nil {
		if g.loader.LoadDropped(dropped) {
			g.setNotice("Loading dropped file...")
		}
	}
	cmds = append(cmds, g.pollLoader()...)

	g.frame = g.session.Step(1/float64(ebiten.TPS()), cmds)
	if g.session.Quitting() {
		return ebiten.Termination
	}
	return nil
}

func (g *Game) pollMouse() []session.Command {
	x, y := ebiten.CursorPosition()
	pitch, onKey := g.renderer.Layout().PitchAt(float64(x), float64(y))
	cmds := g.mouse.update(pitch, onKey, ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft))

	if _, dy := ebiten.Wheel(); dy != 0 {
		cmds = append(cmds, session.Scroll(dy*wheelScroll))
	}
	return cmds
}

func (g *Game) openDialog() {
	if !g.loader.Open(g.opts.Dialog) {
		g.setNotice("A file is already loading")
	}
}

// pollLoader は読み込み結果をフレームの合間に反映する
func (g *Game) pollLoader() []session.Command {
	r, ok := g.loader.Poll()
	if !ok {
		return nil
	}
	switch {
	case errors.Is(r.Err, errCancelled):
		return nil
	case errors.Is(r.Err, ErrInputDeviceUnavailable):
		g.setNotice("No file dialog available (install zenity or kdialog), drop a file instead")
		return nil
	case r.Err != nil:
		g.setNotice(fmt.Sprintf("Could not load %s: %v", r.Source, r.Err))
		return nil
	}
	g.setNotice("Loaded " + r.Song.Meta.Name)
	ebiten.SetWindowTitle(windowTitle(r.Song.Meta.Name))
	return []session.Command{session.LoadSong(r.Song)}
}

func (g *Game) setNotice(msg string) {
	g.notice = msg
	g.noticeEnd = time.Now().Add(noticeDuration)
}

func (g *Game) currentNotice() string {
	if g.notice != "" && time.Now().After(g.noticeEnd) {
		g.notice = ""
	}
	return g.notice
}

// Draw 画面の描画
func (g *Game) Draw(screen *ebiten.Image) {
	out := g.session.Output()
	s := g.session.Song()
	hud := render.HUD{
		Title:        s.Meta.Name,
		FPS:          ebiten.ActualFPS(),
		NotesLoaded:  len(s.Notes),
		Volume:       out.Volume(),
		Muted:        out.Muted(),
		AudioEnabled: out.Enabled(),
		Interactive:  g.opts.Interactive,
		Debug:        g.opts.Debug,
		Notice:       g.currentNotice(),
		Hands:        g.session.Hands().String(),
	}
	g.renderer.Draw(screen, g.frame, g.session.Keyboard(), g.session.View(), hud)
}

// Layout 論理画面サイズを返す
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.opts.Width, g.opts.Height
}

func windowTitle(name string) string {
	if name == "" {
		return "keyfall"
	}
	return "keyfall - " + name
}

// Run GUIモードでウィンドウを実行
func Run(s *session.Session, opts Options) error {
	game := NewGame(s, opts)

	ebiten.SetWindowSize(game.opts.Width, game.opts.Height)
	ebiten.SetWindowTitle(windowTitle(s.Song().Meta.Name))
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(DefaultTPS)

	if err := ebiten.RunGame(game); err != nil {
		return fmt.Errorf("failed to run game: %w", err)
	}
	return nil
}

// RunHeadless drives the session without a window until the song finishes,
// a Quit command arrives or ctx ends. The session starts playing at once.
func RunHeadless(ctx context.Context, s *session.Session, tps int) error {
	if tps <= 0 {
		tps = DefaultTPS
	}
	log := logger.Component("window")
	ticker := time.NewTicker(time.Second / time.Duration(tps))
	defer ticker.Stop()

	frame := s.Step(0, []session.Command{session.Do(session.CmdPlayPause)})
	last := time.Now()
	log.Info("Headless playback started", "duration", frame.Duration, "notes", len(s.Song().Notes))

	for {
		if s.Quitting() || (frame.Paused && s.Finished()) {
			log.Info("Headless playback finished", "playhead", frame.Playhead)
			return nil
		}
		select {
		case <-ctx.Done():
			log.Info("Headless playback stopped", "playhead", frame.Playhead, "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil
			}
			return ctx.Err()
		case now := <-ticker.C:
			frame = s.Step(now.Sub(last).Seconds(), nil)
			last = now
		}
	}
}
