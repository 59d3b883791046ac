package song

import (
	"bytes"
	"sort"
)

// midiEvent はテスト用MIDIファイルのイベント（絶対tick）
type midiEvent struct {
	tick int
	data []byte
}

func noteOn(tick, ch, key, vel int) midiEvent {
	return midiEvent{tick, []byte{byte(0x90 | ch), byte(key), byte(vel)}}
}

func noteOff(tick, ch, key int) midiEvent {
	return midiEvent{tick, []byte{byte(0x80 | ch), byte(key), 0x40}}
}

func tempoEvent(tick, microsPerQuarter int) midiEvent {
	return midiEvent{tick, []byte{0xFF, 0x51, 0x03,
		byte(microsPerQuarter >> 16), byte(microsPerQuarter >> 8), byte(microsPerQuarter)}}
}

func metaText(tick int, typ byte, text string) midiEvent {
	data := append([]byte{0xFF, typ}, encodeVarInt(len(text))...)
	return midiEvent{tick, append(data, text...)}
}

// buildTrack イベントをtick順に並べてMTrkチャンクを作る（End of Trackを付ける）
func buildTrack(endTick int, events ...midiEvent) []byte {
	sorted := make([]midiEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].tick < sorted[j].tick })

	var body bytes.Buffer
	last := 0
	for _, ev := range sorted {
		body.Write(encodeVarInt(ev.tick - last))
		body.Write(ev.data)
		last = ev.tick
	}
	if endTick < last {
		endTick = last
	}
	body.Write(encodeVarInt(endTick - last))
	body.Write([]byte{0xFF, 0x2F, 0x00})

	var buf bytes.Buffer
	buf.WriteString("MTrk")
	n := body.Len()
	buf.Write([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	buf.Write(body.Bytes())
	return buf.Bytes()
}

// rawTrack は本体をそのまま格納したMTrkチャンクを作る（End of Trackは付けない）
func rawTrack(body ...byte) []byte {
	n := len(body)
	chunk := []byte{'M', 'T', 'r', 'k', byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	return append(chunk, body...)
}

// buildSMF MThdヘッダーとトラックからMIDIファイルを作る
func buildSMF(format int, division uint16, tracks ...[]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("MThd")
	buf.Write([]byte{0x00, 0x00, 0x00, 0x06})
	buf.Write([]byte{0x00, byte(format)})
	buf.Write([]byte{byte(len(tracks) >> 8), byte(len(tracks))})
	buf.Write([]byte{byte(division >> 8), byte(division)})
	for _, tr := range tracks {
		buf.Write(tr)
	}
	return buf.Bytes()
}

// encodeVarInt encodes an integer as a variable-length quantity
func encodeVarInt(value int) []byte {
	if value == 0 {
		return []byte{0}
	}

	var result []byte
	for value > 0 {
		b := byte(value & 0x7F)
		value >>= 7
		if len(result) > 0 {
			b |= 0x80
		}
		result = append([]byte{b}, result...)
	}
	return result
}
