package session

import "github.com/zurustar/keyfall/pkg/song"

// HandMode は左右の手の色分け方法
type HandMode int

const (
	HandsAuto      HandMode = iota // 読み込み時の判定のまま
	HandsByPitch                   // 中央のCで分ける
	HandsByChannel                 // 最も低いチャンネルを左手、残りを右手
	HandsOff                       // 色分けしない
	handModeCount
)

func (m HandMode) String() string {
	switch m {
	case HandsAuto:
		return "auto"
	case HandsByPitch:
		return "pitch"
	case HandsByChannel:
		return "channel"
	case HandsOff:
		return "off"
	default:
		return "unknown"
	}
}

// nextHandMode returns the mode after m. Channel mode is skipped for songs
// that use fewer than two channels.
func nextHandMode(m HandMode, src *song.Song) HandMode {
	for {
		m = (m + 1) % handModeCount
		if m != HandsByChannel || len(src.Channels()) >= 2 {
			return m
		}
	}
}

// applyHands は src をモードに従って手を割り当て直した曲を返す
func applyHands(m HandMode, src *song.Song) *song.Song {
	switch m {
	case HandsByPitch:
		return src.SplitByPitch(song.MiddleC)
	case HandsByChannel:
		if chs := src.Channels(); len(chs) >= 2 {
			return src.SplitByChannels(chs[:1], chs[1:])
		}
	}
	return src
}
