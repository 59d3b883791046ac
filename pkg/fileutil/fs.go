// Package fileutil provides case-insensitive file access over the real file
// system and any fs.FS, used to locate sound samples and SoundFonts.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound はファイルが見つからないことを表す
var ErrNotFound = errors.New("file not found")

// FileSystem は実ファイルシステムとfs.FSを統一的に扱うインターフェース
type FileSystem interface {
	// ReadFile はファイルの内容を読み込む（大文字小文字を無視）
	ReadFile(name string) ([]byte, error)
	// FindFile は大文字小文字を無視してファイルを検索し、実際のパスを返す
	FindFile(name string) (string, error)
	// Exists はファイルが存在するかどうかを返す
	Exists(name string) bool
	// BasePath はベースパスを返す
	BasePath() string
}

// RealFS は実ファイルシステムへのアクセスを提供する
type RealFS struct {
	basePath string
}

// NewRealFS は実ファイルシステム用のFileSystemを作成する
func NewRealFS(basePath string) *RealFS {
	return &RealFS{basePath: basePath}
}

func (r *RealFS) ReadFile(name string) ([]byte, error) {
	actualPath, err := r.FindFile(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(actualPath)
}

func (r *RealFS) FindFile(name string) (string, error) {
	p := r.resolvePath(name)

	// まず直接アクセスを試みる
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		return p, nil
	}

	return FindFileCaseInsensitive(filepath.Dir(p), filepath.Base(p))
}

func (r *RealFS) Exists(name string) bool {
	_, err := r.FindFile(name)
	return err == nil
}

func (r *RealFS) BasePath() string {
	return r.basePath
}

func (r *RealFS) resolvePath(name string) string {
	if filepath.IsAbs(name) || r.basePath == "" {
		return name
	}
	return filepath.Join(r.basePath, name)
}

// FS はfs.FS（embed.FS、fstest.MapFSなど）へのアクセスを提供する
type FS struct {
	fsys     fs.FS
	basePath string
}

// NewFS はfs.FS用のFileSystemを作成する
func NewFS(fsys fs.FS, basePath string) *FS {
	return &FS{fsys: fsys, basePath: basePath}
}

func (e *FS) ReadFile(name string) ([]byte, error) {
	actualPath, err := e.FindFile(name)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(e.fsys, actualPath)
}

func (e *FS) FindFile(name string) (string, error) {
	p := e.resolvePath(name)

	if info, err := fs.Stat(e.fsys, p); err == nil && !info.IsDir() {
		return p, nil
	}

	return FindFileCaseInsensitiveFS(e.fsys, path.Dir(p), path.Base(p))
}

func (e *FS) Exists(name string) bool {
	_, err := e.FindFile(name)
	return err == nil
}

func (e *FS) BasePath() string {
	return e.basePath
}

func (e *FS) resolvePath(name string) string {
	// fs.FS は "/" 区切りで先頭の "/" を受け付けない
	clean := strings.TrimPrefix(filepath.ToSlash(name), "/")
	if e.basePath == "" || e.basePath == "." {
		return path.Clean(clean)
	}
	return path.Join(e.basePath, clean)
}

// FindFileCaseInsensitive searches dir for filename ignoring case.
func FindFileCaseInsensitive(dir, filename string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s (%v)", ErrNotFound, filename, err)
	}
	if name, ok := matchEntry(entries, filename); ok {
		return filepath.Join(dir, name), nil
	}
	return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
}

// FindFileCaseInsensitiveFS is FindFileCaseInsensitive for an fs.FS.
func FindFileCaseInsensitiveFS(fsys fs.FS, dir, filename string) (string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s (%v)", ErrNotFound, filename, err)
	}
	if name, ok := matchEntry(entries, filename); ok {
		return path.Join(dir, name), nil
	}
	return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
}

func matchEntry(entries []fs.DirEntry, filename string) (string, bool) {
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), filename) {
			return entry.Name(), true
		}
	}
	return "", false
}
