package sound

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/zurustar/keyfall/pkg/fileutil"
	"github.com/zurustar/keyfall/pkg/keyboard"
	"github.com/zurustar/keyfall/pkg/logger"
)

// Source は音源の種類
type Source int

const (
	SourceNone Source = iota
	SourceSample
	SourceTransposed
	SourceSoundFont
	SourceTone
)

func (s Source) String() string {
	switch s {
	case SourceSample:
		return "sample"
	case SourceTransposed:
		return "transposed"
	case SourceSoundFont:
		return "soundfont"
	case SourceTone:
		return "tone"
	default:
		return "none"
	}
}

// Voicer renders a fallback voice for a pitch as 16-bit stereo PCM.
type Voicer interface {
	Render(pitch int) ([]byte, error)
	Source() Source
}

// SampleFileName はピッチに対応するサンプルファイル名を返す
func SampleFileName(pitch int) string {
	return fmt.Sprintf("piano_%d.wav", pitch)
}

type voiceData struct {
	pcm []byte
	src Source
}

// DefaultMaxTranspose は録音サンプルを移調して使う最大の半音数
const DefaultMaxTranspose = 12

// SampleBank holds one voice per pitch. Recorded samples come from the asset
// file system. A pitch without a usable file is transposed from the nearest
// recorded pitch within MaxTranspose semitones, otherwise it uses the first
// fallback that renders successfully. Results are cached.
type SampleBank struct {
	fsys       fileutil.FileSystem
	sampleRate int
	fallbacks  []Voicer

	// MaxTranspose が0なら移調しない
	MaxTranspose int

	mu       sync.Mutex
	cache    map[int]voiceData
	recorded map[int][]byte
	missing  map[int]error
	log      *slog.Logger
}

// NewSampleBank creates a bank. fsys may be nil, in which case every pitch
// uses the fallbacks.
func NewSampleBank(fsys fileutil.FileSystem, sampleRate int, fallbacks ...Voicer) *SampleBank {
	return &SampleBank{
		fsys:         fsys,
		sampleRate:   sampleRate,
		fallbacks:    fallbacks,
		MaxTranspose: DefaultMaxTranspose,
		cache:        make(map[int]voiceData),
		recorded:     make(map[int][]byte),
		missing:      make(map[int]error),
		log:          logger.Component("sound"),
	}
}

// Sample returns the PCM for a pitch and where it came from.
// Pitches outside the keyboard fail at once, so playback never loads
// anything that Preload did not.
func (b *SampleBank) Sample(pitch int) ([]byte, Source, error) {
	if !keyboard.InRange(pitch) {
		return nil, SourceNone, fmt.Errorf("%w: %d", ErrPitchOutOfRange, pitch)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if v, ok := b.cache[pitch]; ok {
		return v.pcm, v.src, nil
	}

	pcm, err := b.recordedLocked(pitch)
	if err == nil {
		b.cache[pitch] = voiceData{pcm: pcm, src: SourceSample}
		return pcm, SourceSample, nil
	}

	if from, base, ok := b.nearestLocked(pitch); ok {
		pcm := transpose(base, pitch-from)
		b.log.Debug("Transposed sample", "pitch", pitch, "from", from)
		b.cache[pitch] = voiceData{pcm: pcm, src: SourceTransposed}
		return pcm, SourceTransposed, nil
	}
	if b.fsys != nil {
		b.log.Warn("Using fallback voice", "pitch", pitch, "error", err)
	}

	for _, v := range b.fallbacks {
		pcm, ferr := v.Render(pitch)
		if ferr != nil {
			b.log.Warn("Fallback voice failed", "pitch", pitch, "source", v.Source(), "error", ferr)
			continue
		}
		b.cache[pitch] = voiceData{pcm: pcm, src: v.Source()}
		return pcm, v.Source(), nil
	}
	return nil, SourceNone, err
}

// recordedLocked はピッチの録音サンプルを返す。Caller must hold b.mu.
func (b *SampleBank) recordedLocked(pitch int) ([]byte, error) {
	if pcm, ok := b.recorded[pitch]; ok {
		return pcm, nil
	}
	if err, ok := b.missing[pitch]; ok {
		return nil, err
	}
	pcm, err := b.loadFile(pitch)
	if err != nil {
		b.missing[pitch] = err
		return nil, err
	}
	b.recorded[pitch] = pcm
	return pcm, nil
}

// nearestLocked は最も近い録音済みピッチを探す（同じ距離なら低い方）
func (b *SampleBank) nearestLocked(pitch int) (int, []byte, bool) {
	if b.fsys == nil {
		return 0, nil, false
	}
	for d := 1; d <= b.MaxTranspose; d++ {
		for _, p := range []int{pitch - d, pitch + d} {
			if !keyboard.InRange(p) {
				continue
			}
			if pcm, err := b.recordedLocked(p); err == nil {
				return p, pcm, true
			}
		}
	}
	return 0, nil, false
}

func (b *SampleBank) loadFile(pitch int) ([]byte, error) {
	name := SampleFileName(pitch)
	if b.fsys == nil {
		return nil, fmt.Errorf("%w: %s (no asset directory)", ErrMissingAsset, name)
	}
	data, err := b.fsys.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingAsset, name, err)
	}
	pcm, err := decodeWAV(data, b.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingAsset, name, err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: %s: empty audio", ErrMissingAsset, name)
	}
	return pcm, nil
}

// Preload loads every piano pitch so that no file I/O happens during
// playback. It returns how many pitches came from each source.
func (b *SampleBank) Preload() map[Source]int {
	counts := make(map[Source]int)
	for p := keyboard.LowestKey; p <= keyboard.HighestKey; p++ {
		_, src, _ := b.Sample(p)
		counts[src]++
	}
	b.log.Info("Voices loaded",
		"samples", counts[SourceSample],
		"transposed", counts[SourceTransposed],
		"soundfont", counts[SourceSoundFont],
		"tone", counts[SourceTone],
		"none", counts[SourceNone])
	return counts
}

// Missing はサンプルファイルが使えなかったピッチとその理由を返す
func (b *SampleBank) Missing() map[int]error {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int]error, len(b.missing))
	for k, v := range b.missing {
		out[k] = v
	}
	return out
}
