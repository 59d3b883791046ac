package window

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path"
	"strings"
	"sync/atomic"

	"github.com/zurustar/keyfall/pkg/fileutil"
	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/song"
)

// ErrInputDeviceUnavailable is returned when no file dialog program is
// installed. The rest of the UI keeps working.
var ErrInputDeviceUnavailable = errors.New("file dialog unavailable")

// errCancelled はダイアログがキャンセルされたことを表す
var errCancelled = errors.New("cancelled")

// FileDialog asks the user for a file and returns its path. An empty path
// with a nil error means the user cancelled.
type FileDialog func() (string, error)

// SystemFileDialog opens a native dialog through zenity or kdialog.
func SystemFileDialog() (string, error) {
	var cmd *exec.Cmd
	if p, err := exec.LookPath("zenity"); err == nil {
		cmd = exec.Command(p, "--file-selection", "--title=Open MIDI file",
			"--file-filter=MIDI files | *.mid *.midi *.MID *.MIDI")
	} else if p, err := exec.LookPath("kdialog"); err == nil {
		cmd = exec.Command(p, "--getopenfilename", ".", "*.mid *.midi|MIDI files")
	} else {
		return "", ErrInputDeviceUnavailable
	}

	out, err := cmd.Output()
	if err != nil {
		// どちらもキャンセル時は終了コード1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrInputDeviceUnavailable, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// LoadResult is a finished background load.
type LoadResult struct {
	Source string
	Song   *song.Song
	Err    error
}

// Loader parses songs off the frame loop and hands the results back over a
// channel that the frame loop polls.
type Loader struct {
	results chan LoadResult
	busy    atomic.Bool
	log     *slog.Logger
}

// NewLoader はローダーを作成する
func NewLoader() *Loader {
	return &Loader{
		results: make(chan LoadResult, 1),
		log:     logger.Component("window"),
	}
}

// Busy は読み込み中かどうかを返す
func (l *Loader) Busy() bool {
	return l.busy.Load()
}

// Start runs load in a goroutine. It returns false if a load is already in
// progress.
func (l *Loader) Start(source string, load func() (*song.Song, error)) bool {
	if !l.busy.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		s, err := load()
		if err != nil {
			l.log.Warn("Load failed", "source", source, "error", err)
		}
		l.results <- LoadResult{Source: source, Song: s, Err: err}
	}()
	return true
}

// LoadPath は MIDI ファイルを読み込む
func (l *Loader) LoadPath(p string) bool {
	return l.Start(p, func() (*song.Song, error) { return song.Load(p) })
}

// LoadDropped loads the first MIDI file found in a dropped-files FS.
func (l *Loader) LoadDropped(fsys fs.FS) bool {
	name, err := firstMIDI(fsys)
	if err != nil {
		return l.Start("dropped files", func() (*song.Song, error) { return nil, err })
	}
	dropped := fileutil.NewFS(fsys, ".")
	return l.Start(name, func() (*song.Song, error) { return song.LoadFS(dropped, name) })
}

// Open shows the dialog and then loads the chosen file, all off the frame
// loop.
func (l *Loader) Open(dialog FileDialog) bool {
	return l.Start("file dialog", func() (*song.Song, error) {
		p, err := dialog()
		if err != nil {
			return nil, err
		}
		if p == "" {
			return nil, errCancelled
		}
		return song.Load(p)
	})
}

// Poll returns a finished result without blocking.
func (l *Loader) Poll() (LoadResult, bool) {
	select {
	case r := <-l.results:
		l.busy.Store(false)
		return r, true
	default:
		return LoadResult{}, false
	}
}

func firstMIDI(fsys fs.FS) (string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(e.Name())) {
		case ".mid", ".midi", ".smf":
			return e.Name(), nil
		}
	}
	return "", errors.New("no MIDI file among dropped files")
}
