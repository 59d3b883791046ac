package sound

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/sinshu/go-meltysynth/meltysynth"
	"github.com/zurustar/keyfall/pkg/fileutil"
)

// ErrSoundFontNotFound is returned when the SoundFont file cannot be found.
var ErrSoundFontNotFound = errors.New("SoundFont file not found")

// ReadSoundFont はSF2ファイルを読み込む。fsがnilの場合はos.ReadFileを使う
func ReadSoundFont(fsys fileutil.FileSystem, path string) ([]byte, error) {
	if fsys == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
			}
			return nil, fmt.Errorf("failed to read SoundFont file: %w", err)
		}
		return data, nil
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
	}
	return data, nil
}

// LoadSoundFont reads and parses a SoundFont.
func LoadSoundFont(fsys fileutil.FileSystem, path string) (*meltysynth.SoundFont, error) {
	data, err := ReadSoundFont(fsys, path)
	if err != nil {
		return nil, err
	}

	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SoundFont: %w", err)
	}
	return sf, nil
}

// SoundFontVoicer renders a single piano note per pitch with the General MIDI
// program 0 of a SoundFont.
type SoundFontVoicer struct {
	sf         *meltysynth.SoundFont
	sampleRate int
	// Hold はノートオフまでの秒数、Release はノートオフ後に録音する秒数
	Hold    float64
	Release float64
}

// NewSoundFontVoicer は SoundFont からボイスを生成する Voicer を作成する
func NewSoundFontVoicer(sf *meltysynth.SoundFont, sampleRate int) *SoundFontVoicer {
	return &SoundFontVoicer{sf: sf, sampleRate: sampleRate, Hold: 1.5, Release: 0.5}
}

func (v *SoundFontVoicer) Source() Source { return SourceSoundFont }

// Render returns 16-bit little-endian stereo PCM.
func (v *SoundFontVoicer) Render(pitch int) ([]byte, error) {
	if v.sf == nil {
		return nil, errors.New("no SoundFont loaded")
	}
	settings := meltysynth.NewSynthesizerSettings(int32(v.sampleRate))
	synth, err := meltysynth.NewSynthesizer(v.sf, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}

	holdN := int(v.Hold * float64(v.sampleRate))
	relN := int(v.Release * float64(v.sampleRate))
	left := make([]float32, holdN+relN)
	right := make([]float32, holdN+relN)

	// 音量はミキサー側で掛けるのでここでは最大ベロシティで鳴らす
	synth.NoteOn(0, int32(pitch), 127)
	synth.Render(left[:holdN], right[:holdN])
	synth.NoteOff(0, int32(pitch))
	synth.Render(left[holdN:], right[holdN:])

	return floatToPCM(left, right), nil
}

func floatToPCM(left, right []float32) []byte {
	out := make([]byte, len(left)*4)
	for i := range left {
		l := clampSample(left[i])
		r := clampSample(right[i])
		out[i*4] = byte(l)
		out[i*4+1] = byte(l >> 8)
		out[i*4+2] = byte(r)
		out[i*4+3] = byte(r >> 8)
	}
	return out
}

func clampSample(s float32) int16 {
	v := float64(s) * 32767
	return int16(math.Max(-32768, math.Min(32767, v)))
}
