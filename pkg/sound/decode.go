package sound

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cwbudde/wav"
	gaudio "github.com/go-audio/audio"
	ebwav "github.com/hajimehoshi/ebiten/v2/audio/wav"
)

// decodeWAV returns 16-bit little-endian stereo PCM at sampleRate. 8/16-bit
// files go through ebiten's decoder; other bit depths (24, 32) through the
// go-audio decoder with linear resampling.
func decodeWAV(data []byte, sampleRate int) ([]byte, error) {
	stream, err := ebwav.DecodeWithSampleRate(sampleRate, bytes.NewReader(data))
	if err == nil {
		pcm, rerr := io.ReadAll(stream)
		if rerr != nil {
			return nil, rerr
		}
		return pcm, nil
	}

	pcm, werr := decodeWide(data, sampleRate)
	if werr != nil {
		return nil, fmt.Errorf("%v; %v", err, werr)
	}
	return pcm, nil
}

func decodeWide(data []byte, sampleRate int) ([]byte, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, errors.New("invalid wav buffer")
	}

	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = int(dec.BitDepth)
	}
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", depth)
	}

	left, right := splitStereo(buf, depth)
	if buf.Format.SampleRate != sampleRate && buf.Format.SampleRate > 0 {
		ratio := float64(buf.Format.SampleRate) / float64(sampleRate)
		left = resample(left, ratio)
		right = resample(right, ratio)
	}
	return floatToPCM(left, right), nil
}

// splitStereo は整数サンプルを-1〜1の左右チャンネルにする。モノラルは両方に複製
func splitStereo(buf *gaudio.IntBuffer, depth int) (left, right []float32) {
	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	scale := float32(math.Ldexp(1, depth-1))
	left = make([]float32, frames)
	right = make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := float32(buf.Data[i*ch]) / scale
		r := l
		if ch > 1 {
			r = float32(buf.Data[i*ch+1]) / scale
		}
		left[i], right[i] = l, r
	}
	return left, right
}

// resample は ratio 倍の速さで読み進めた信号を線形補間で返す
func resample(in []float32, ratio float64) []float32 {
	if ratio <= 0 || len(in) == 0 {
		return nil
	}
	n := int(float64(len(in)) / ratio)
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		frac := float32(pos - float64(j))
		a := in[j]
		b := a
		if j+1 < len(in) {
			b = in[j+1]
		}
		out[i] = a + (b-a)*frac
	}
	return out
}

// pcmToFloat は16bitステレオPCMを左右のfloatに戻す
func pcmToFloat(pcm []byte) (left, right []float32) {
	frames := len(pcm) / 4
	left = make([]float32, frames)
	right = make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(uint16(pcm[i*4]) | uint16(pcm[i*4+1])<<8)
		r := int16(uint16(pcm[i*4+2]) | uint16(pcm[i*4+3])<<8)
		left[i] = float32(l) / 32768
		right[i] = float32(r) / 32768
	}
	return left, right
}

// transpose shifts a recorded voice by semitones by changing its playback
// speed, as a tape would.
func transpose(pcm []byte, semitones int) []byte {
	left, right := pcmToFloat(pcm)
	ratio := math.Pow(2, float64(semitones)/12)
	return floatToPCM(resample(left, ratio), resample(right, ratio))
}
