package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultWidth はウィンドウ幅の既定値
	DefaultWidth = 1200
	// DefaultHeight はウィンドウ高さの既定値
	DefaultHeight = 800
	// DefaultAssetDir は音源サンプルを探すディレクトリの既定値
	DefaultAssetDir = "assets/sounds/default"

	minWidth  = 320
	minHeight = 240
)

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	MIDIPath    string        // 読み込むMIDIファイルのパス（省略可）
	Interactive bool          // ファイルなしで起動し、キーボードで演奏するモード
	Width       int           // ウィンドウ幅
	Height      int           // ウィンドウ高さ
	Debug       bool          // デバッグ表示（ログレベルもdebugになる）
	LogLevel    string        // ログレベル（debug, info, warn, error）
	AssetDir    string        // piano_<n>.wav を探すディレクトリ
	SoundFont   string        // フォールバック音源に使うSF2ファイル（省略時は自動検索）
	Muted       bool          // ミュート状態で起動
	Headless    bool          // ヘッドレスモード（ウィンドウ・音声なし）
	Timeout     time.Duration // タイムアウト時間（0は無制限）
	ShowHelp    bool          // ヘルプ表示フラグ
}

// boolFlags は値を取らないフラグ
var boolFlags = map[string]bool{
	"-h": true, "-help": true, "--help": true,
	"-i": true, "-interactive": true, "--interactive": true,
	"-d": true, "-debug": true, "--debug": true,
	"-headless": true, "--headless": true,
	"-mute": true, "--mute": true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("keyfall", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	config := &Config{}

	var timeoutSec int
	fs.BoolVar(&config.Interactive, "interactive", false, "ファイルなしで起動")
	fs.BoolVar(&config.Interactive, "i", false, "ファイルなしで起動（短縮形）")
	fs.IntVar(&config.Width, "width", DefaultWidth, "ウィンドウ幅")
	fs.IntVar(&config.Height, "height", DefaultHeight, "ウィンドウ高さ")
	fs.BoolVar(&config.Debug, "debug", false, "デバッグ表示")
	fs.BoolVar(&config.Debug, "d", false, "デバッグ表示（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.StringVar(&config.AssetDir, "assets", "", "音源サンプルのディレクトリ")
	fs.StringVar(&config.SoundFont, "soundfont", "", "SoundFontファイル")
	fs.BoolVar(&config.Muted, "mute", false, "ミュート状態で起動")
	fs.BoolVar(&config.Headless, "headless", false, "ヘッドレスモード")
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if !config.Headless {
		if headlessEnv := os.Getenv("HEADLESS"); headlessEnv != "" {
			config.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}

	if timeoutSec == 0 {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	if config.LogLevel == "info" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	if config.AssetDir == "" {
		config.AssetDir = os.Getenv("KEYFALL_ASSETS")
	}
	if config.AssetDir == "" {
		config.AssetDir = DefaultAssetDir
	}

	if config.SoundFont == "" {
		config.SoundFont = os.Getenv("SOUNDFONT")
	}

	// --debug はログレベルより優先
	if config.Debug {
		config.LogLevel = "debug"
	}

	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}

	if config.Width < minWidth || config.Height < minHeight {
		return nil, fmt.Errorf("window size must be at least %dx%d, got %dx%d", minWidth, minHeight, config.Width, config.Height)
	}

	// 位置引数（MIDIファイルのパス）。インタラクティブモードでは無視する
	if fs.NArg() > 0 && !config.Interactive {
		config.MIDIPath = fs.Arg(0)
	}

	return config, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--" 以降はすべて位置引数（flag パッケージに区切りとして渡す）
		if arg == "--" {
			positional = append(append(positional, "--"), args[i+1:]...)
			break
		}

		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)

			// --width=800 の形式は次の引数を取らない
			if strings.Contains(arg, "=") || boolFlags[arg] {
				continue
			}

			// -t 5 のような場合は次の引数が値
			if i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}

	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp(w io.Writer) {
	fmt.Fprintf(w, `keyfall - falling-note piano visualizer

Usage:
  keyfall [options] [midi-file]

Arguments:
  midi-file     再生するStandard MIDI File（format 0/1/2）

Options:
  -i, --interactive           ファイルなしで起動し、PCキーボードで演奏
  --width <px>                ウィンドウ幅（デフォルト: %d）
  --height <px>               ウィンドウ高さ（デフォルト: %d）
  -d, --debug                 デバッグ表示とデバッグログ
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  --assets <dir>              piano_<n>.wav のディレクトリ（デフォルト: %s）
  --soundfont <file>          フォールバック音源のSF2ファイル
  --mute                      ミュート状態で起動
  --headless                  ヘッドレスモード（ウィンドウ・音声なし）
  -t, --timeout <seconds>     指定秒数後にプログラムを終了（デフォルト: 無制限）
  -h, --help                  このヘルプを表示

Keys:
  SPACE 再生/一時停止   R 最初から   ESC 終了
  UP/DOWN 音量          LEFT/RIGHT 速度   1-9 速度プリセット
  +/- ズーム            M ミュート         H 手の色分け切替(自動/音高/チャンネル/なし)
  PGUP/PGDN 5秒移動     HOME 停止          O ファイルを開く
  マウスのクリックで鍵盤を弾く。ファイルのドロップで読み込み
  --interactive では Z〜M / Q〜I の列が鍵盤になる（同じキーの操作より優先）

Environment Variables:
  HEADLESS=1                  ヘッドレスモードを有効化
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル
  KEYFALL_ASSETS=<dir>        音源サンプルのディレクトリ
  SOUNDFONT=<file>            SF2ファイル

Examples:
  keyfall song.mid
  keyfall --interactive
  keyfall --headless --timeout 10 song.mid
`, DefaultWidth, DefaultHeight, DefaultAssetDir)
}
