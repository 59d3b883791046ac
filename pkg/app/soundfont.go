package app

import (
	"os"
	"path/filepath"

	"github.com/zurustar/keyfall/pkg/fileutil"
)

// SoundFontLocation represents the location of a SoundFont file.
type SoundFontLocation struct {
	// Path is the path to the SoundFont file
	Path string
	// FileSystem is the FileSystem to use for loading (nil for a plain path)
	FileSystem fileutil.FileSystem
}

// DefaultSoundFontName is the default SoundFont filename to search for.
const DefaultSoundFontName = "GeneralUser-GS.sf2"

// findSoundFont searches for a SoundFont in this order:
//  1. the explicitly configured file
//  2. the sample asset directory (case-insensitive)
//  3. the current directory
//  4. the directory of the MIDI file
func findSoundFont(explicit, assetDir, midiPath string) *SoundFontLocation {
	if explicit != "" {
		if info, err := os.Stat(explicit); err == nil && !info.IsDir() {
			return &SoundFontLocation{Path: explicit}
		}
		return nil
	}

	if assetDir != "" {
		fsys := fileutil.NewRealFS(assetDir)
		if fsys.Exists(DefaultSoundFontName) {
			return &SoundFontLocation{Path: DefaultSoundFontName, FileSystem: fsys}
		}
	}

	if _, err := os.Stat(DefaultSoundFontName); err == nil {
		return &SoundFontLocation{Path: DefaultSoundFontName}
	}

	if midiPath != "" {
		p := filepath.Join(filepath.Dir(midiPath), DefaultSoundFontName)
		if _, err := os.Stat(p); err == nil {
			return &SoundFontLocation{Path: p}
		}
	}

	return nil
}
