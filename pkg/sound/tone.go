package sound

import "math"

// harmonics は倍音ごとの相対振幅
var harmonics = []float64{1, 0.5, 0.25, 0.125}

// ToneVoicer generates a decaying additive tone. It is the last fallback and
// never fails for any pitch.
type ToneVoicer struct {
	sampleRate int
	Seconds    float64
	Attack     float64
	// Decay は振幅が 1/e になるまでの秒数
	Decay     float64
	Amplitude float64
}

// NewToneVoicer は生成音の Voicer を作成する
func NewToneVoicer(sampleRate int) *ToneVoicer {
	return &ToneVoicer{
		sampleRate: sampleRate,
		Seconds:    2.0,
		Attack:     0.005,
		Decay:      0.6,
		Amplitude:  0.3,
	}
}

func (v *ToneVoicer) Source() Source { return SourceTone }

// Frequency returns the equal-tempered frequency of a MIDI pitch (A4 = 440 Hz).
func Frequency(pitch int) float64 {
	return 440 * math.Pow(2, float64(pitch-69)/12)
}

func (v *ToneVoicer) Render(pitch int) ([]byte, error) {
	n := int(v.Seconds * float64(v.sampleRate))
	left := make([]float32, n)
	right := make([]float32, n)

	freq := Frequency(pitch)
	nyquist := float64(v.sampleRate) / 2
	var norm float64
	for _, a := range harmonics {
		norm += a
	}
	attackN := v.Attack * float64(v.sampleRate)

	for i := 0; i < n; i++ {
		t := float64(i) / float64(v.sampleRate)
		var s float64
		for h, a := range harmonics {
			f := freq * float64(h+1)
			if f >= nyquist {
				break
			}
			s += a * math.Sin(2*math.Pi*f*t)
		}
		env := math.Exp(-t / v.Decay)
		if float64(i) < attackN {
			env *= float64(i) / attackN
		}
		sample := float32(s / norm * env * v.Amplitude)
		left[i] = sample
		right[i] = sample
	}
	return floatToPCM(left, right), nil
}
