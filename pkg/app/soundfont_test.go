package app

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
}

func TestFindSoundFont(t *testing.T) {
	tmpDir := t.TempDir()
	assets := filepath.Join(tmpDir, "assets")
	songs := filepath.Join(tmpDir, "songs")
	explicit := filepath.Join(tmpDir, "custom.sf2")

	writeFile(t, explicit, []byte("RIFF....sfbk"))
	writeFile(t, filepath.Join(assets, "generaluser-gs.SF2"), []byte("RIFF....sfbk"))
	writeFile(t, filepath.Join(songs, DefaultSoundFontName), []byte("RIFF....sfbk"))

	originalDir, _ := os.Getwd()
	defer os.Chdir(originalDir)
	os.Chdir(tmpDir)

	tests := []struct {
		name     string
		explicit string
		assetDir string
		midiPath string
		wantPath string
		wantFS   bool
		wantNil  bool
	}{
		{"明示したファイルを優先", explicit, assets, "", explicit, false, false},
		{"明示したファイルがなければ見つからない", filepath.Join(tmpDir, "none.sf2"), assets, "", "", false, true},
		{"アセットディレクトリを大文字小文字無視で探す", "", assets, "", DefaultSoundFontName, true, false},
		{"MIDIファイルと同じディレクトリ", "", filepath.Join(tmpDir, "empty"), filepath.Join(songs, "a.mid"),
			filepath.Join(songs, DefaultSoundFontName), false, false},
		{"どこにもない", "", filepath.Join(tmpDir, "empty"), "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := findSoundFont(tt.explicit, tt.assetDir, tt.midiPath)
			if tt.wantNil {
				if result != nil {
					t.Errorf("Expected nil, got %+v", result)
				}
				return
			}
			if result == nil {
				t.Fatal("Expected to find SoundFont")
			}
			if result.Path != tt.wantPath {
				t.Errorf("Expected path %s, got %s", tt.wantPath, result.Path)
			}
			if (result.FileSystem != nil) != tt.wantFS {
				t.Errorf("FileSystem = %v, want non-nil %v", result.FileSystem, tt.wantFS)
			}
		})
	}
}

func TestFindSoundFont_CurrentDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, DefaultSoundFontName), []byte("RIFF....sfbk"))

	originalDir, _ := os.Getwd()
	defer os.Chdir(originalDir)
	os.Chdir(tmpDir)

	result := findSoundFont("", filepath.Join(tmpDir, "missing"), "")
	if result == nil {
		t.Fatal("Expected to find SoundFont in current directory")
	}
	if result.FileSystem != nil {
		t.Error("Expected nil FileSystem for external file")
	}
	if result.Path != DefaultSoundFontName {
		t.Errorf("Expected path %s, got %s", DefaultSoundFontName, result.Path)
	}
}
