package sound

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/zurustar/keyfall/pkg/logger"
)

// DefaultReleaseUpdates はノートオフからボイスを閉じるまでのUpdate回数
const DefaultReleaseUpdates = 8

// Player is the part of *audio.Player the mixer drives.
type Player interface {
	Play()
	IsPlaying() bool
	SetVolume(volume float64)
	Close() error
}

// PlayerFactory creates a player for a PCM buffer.
type PlayerFactory func(pcm []byte) Player

type voice struct {
	player Player
	pitch  int
	gain   float64
	// release は残りのフェードステップ数。0 はリリース中でないことを表す
	release int
}

// Mixer plays one voice per note ID through ebiten's audio context.
type Mixer struct {
	mu        sync.Mutex
	bank      *SampleBank
	newPlayer PlayerFactory
	errFn     func() error

	voices         map[int]*voice
	volume         float64
	muted          bool
	disabled       bool
	ReleaseUpdates int

	log *slog.Logger
}

// NewMixer creates a mixer on an ebiten audio context.
func NewMixer(ctx *audio.Context, bank *SampleBank) *Mixer {
	factory := func(pcm []byte) Player {
		return ctx.NewPlayerFromBytes(pcm)
	}
	return NewMixerWithFactory(bank, factory, ctx.Err)
}

// NewMixerWithFactory creates a mixer with a custom player factory. errFn
// reports the audio device state and may be nil.
func NewMixerWithFactory(bank *SampleBank, factory PlayerFactory, errFn func() error) *Mixer {
	if errFn == nil {
		errFn = func() error { return nil }
	}
	return &Mixer{
		bank:           bank,
		newPlayer:      factory,
		errFn:          errFn,
		voices:         make(map[int]*voice),
		volume:         1,
		ReleaseUpdates: DefaultReleaseUpdates,
		log:            logger.Component("sound"),
	}
}

// checkDevice disables the mixer the first time the device reports an error.
// Caller must hold m.mu.
func (m *Mixer) checkDevice() error {
	if m.disabled {
		return ErrAudioUnavailable
	}
	if err := m.errFn(); err != nil {
		m.disabled = true
		m.closeAll()
		m.log.Error("Audio disabled", "error", err)
		return fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
	}
	return nil
}

func (m *Mixer) NoteOn(id, pitch, velocity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkDevice(); err != nil {
		return err
	}

	// 同じIDが再発音された場合だけ前のボイスを止める
	if old, ok := m.voices[id]; ok {
		_ = old.player.Close()
		delete(m.voices, id)
	}

	pcm, _, err := m.bank.Sample(pitch)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return errors.New("empty voice")
	}

	v := &voice{player: m.newPlayer(pcm), pitch: pitch, gain: Gain(velocity)}
	v.player.SetVolume(m.effective(v))
	v.player.Play()
	m.voices[id] = v
	return nil
}

func (m *Mixer) NoteOff(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.voices[id]
	if !ok || v.release > 0 {
		return
	}
	if m.ReleaseUpdates <= 0 {
		_ = v.player.Close()
		delete(m.voices, id)
		return
	}
	v.release = m.ReleaseUpdates
}

func (m *Mixer) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeAll()
}

func (m *Mixer) closeAll() {
	for id, v := range m.voices {
		_ = v.player.Close()
		delete(m.voices, id)
	}
}

// Update advances release fades and drops voices whose buffer ran out.
func (m *Mixer) Update() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.checkDevice() != nil {
		return
	}

	for id, v := range m.voices {
		if v.release > 0 {
			v.release--
			if v.release == 0 {
				_ = v.player.Close()
				delete(m.voices, id)
				continue
			}
			v.player.SetVolume(m.effective(v))
			continue
		}
		if !v.player.IsPlaying() {
			_ = v.player.Close()
			delete(m.voices, id)
		}
	}
}

// effective は master × gain × フェード係数。Caller must hold m.mu.
func (m *Mixer) effective(v *voice) float64 {
	if m.muted {
		return 0
	}
	g := m.volume * v.gain
	if v.release > 0 && m.ReleaseUpdates > 0 {
		g *= float64(v.release) / float64(m.ReleaseUpdates+1)
	}
	return g
}

func (m *Mixer) applyVolumes() {
	for _, v := range m.voices {
		v.player.SetVolume(m.effective(v))
	}
}

func (m *Mixer) SetVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = clampVolume(vol)
	m.applyVolumes()
}

func (m *Mixer) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

func (m *Mixer) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
	m.applyVolumes()
}

func (m *Mixer) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *Mixer) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disabled
}

// ActiveVoices は現在のボイス数（リリース中を含む）を返す
func (m *Mixer) ActiveVoices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

func (m *Mixer) Close() error {
	m.StopAll()
	return nil
}

var _ Output = (*Mixer)(nil)
var _ Output = (*Silent)(nil)
