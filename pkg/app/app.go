// Package app wires the command line, logging, loading, sound and the frame
// loop together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/zurustar/keyfall/pkg/cli"
	"github.com/zurustar/keyfall/pkg/fileutil"
	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/session"
	"github.com/zurustar/keyfall/pkg/song"
	"github.com/zurustar/keyfall/pkg/sound"
	"github.com/zurustar/keyfall/pkg/window"
)

// ErrNoSong is returned when headless mode is started without a MIDI file.
var ErrNoSong = errors.New("no MIDI file given")

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config *cli.Config
	log    *slog.Logger
}

// New Applicationを作成
func New() *Application {
	return &Application{}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	config, err := cli.ParseArgs(args)
	if err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}
	app.config = config

	if config.ShowHelp {
		cli.PrintHelp(os.Stdout)
		return nil
	}

	// 2. ロガーの初期化
	if err := logger.InitLogger(config.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.log = logger.GetLogger()
	app.log.Info("Application started", "file", config.MIDIPath, "interactive", config.Interactive, "headless", config.Headless)

	// 3. 曲の読み込み（失敗したら終了）
	s, err := app.loadSong()
	if err != nil {
		return err
	}
	app.log.Info("Song loaded",
		"name", s.Meta.Name,
		"notes", len(s.Notes),
		"duration", s.Duration,
		"format", s.Meta.Format,
		"tracks", s.Meta.Tracks,
		"bpm", s.Meta.InitialBPM)

	// 4. 音声出力
	out := app.buildOutput()
	out.SetMuted(config.Muted)

	// 5. セッションとフレームループ
	layout := window.NewLayout(config.Width, config.Height)
	sess := session.New(s, out, layout.KeyboardTop)
	defer sess.Close()

	if config.Headless {
		return app.runHeadless(sess)
	}

	err = window.Run(sess, window.Options{
		Width:       config.Width,
		Height:      config.Height,
		Interactive: config.Interactive,
		Debug:       config.Debug,
		Timeout:     config.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to run window: %w", err)
	}

	app.log.Info("Application terminated normally")
	return nil
}

// loadSong は設定に従って曲を読み込む
func (app *Application) loadSong() (*song.Song, error) {
	if app.config.Interactive {
		return song.Empty(), nil
	}
	if app.config.MIDIPath == "" {
		if app.config.Headless {
			return nil, ErrNoSong
		}
		// ウィンドウではOキーやドロップで後から開ける
		return song.Empty(), nil
	}

	s, err := song.Load(app.config.MIDIPath)
	if err != nil {
		app.log.Error("Failed to load MIDI file", "path", app.config.MIDIPath, "error", err)
		return nil, fmt.Errorf("failed to load %s: %w", app.config.MIDIPath, err)
	}
	return s, nil
}

// buildOutput は音声出力を作成する。ヘッドレスでは記録のみの無音出力
func (app *Application) buildOutput() sound.Output {
	if app.config.Headless {
		return sound.NewSilent(true)
	}

	bank := sound.NewSampleBank(app.assetFS(), sound.SampleRate, app.fallbackVoicers()...)
	bank.Preload()

	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(sound.SampleRate)
	}
	if err := ctx.Err(); err != nil {
		app.log.Warn("Audio unavailable, continuing silently", "error", err)
		return sound.NewSilent(false)
	}
	return sound.NewMixer(ctx, bank)
}

func (app *Application) assetFS() fileutil.FileSystem {
	dir := app.config.AssetDir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		app.log.Warn("Sample directory not found, using fallback voices", "dir", dir)
		return nil
	}
	return fileutil.NewRealFS(dir)
}

// fallbackVoicers はサンプルがないピッチ用の音源（SoundFont、生成音の順）
func (app *Application) fallbackVoicers() []sound.Voicer {
	var voicers []sound.Voicer

	loc := findSoundFont(app.config.SoundFont, app.config.AssetDir, app.config.MIDIPath)
	switch {
	case loc == nil && app.config.SoundFont != "":
		app.log.Warn("SoundFont not found", "path", app.config.SoundFont)
	case loc != nil:
		sf, err := sound.LoadSoundFont(loc.FileSystem, loc.Path)
		if err != nil {
			app.log.Warn("Failed to load SoundFont", "path", loc.Path, "error", err)
			break
		}
		app.log.Info("SoundFont loaded", "path", loc.Path)
		voicers = append(voicers, sound.NewSoundFontVoicer(sf, sound.SampleRate))
	}

	return append(voicers, sound.NewToneVoicer(sound.SampleRate))
}

func (app *Application) runHeadless(sess *session.Session) error {
	ctx := context.Background()
	if app.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.config.Timeout)
		defer cancel()
	}

	app.log.Info("Headless mode: playing without window")
	if err := window.RunHeadless(ctx, sess, window.DefaultTPS); err != nil {
		return fmt.Errorf("headless playback: %w", err)
	}
	frame := sess.Frame()
	app.log.Info("Headless playback done", "playhead", frame.Playhead, "duration", frame.Duration)
	return nil
}
