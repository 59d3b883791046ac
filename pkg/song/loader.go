package song

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/zurustar/keyfall/pkg/fileutil"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ErrMalformedFile is returned when a file cannot be read as a Standard MIDI
// File: unreadable, wrong signature, unsupported format, truncated track data
// or undecodable events. No partial song is returned with it.
var ErrMalformedFile = errors.New("malformed MIDI file")

// Load reads a MIDI file from disk. The file name is matched without
// regard to case.
func Load(path string) (*Song, error) {
	return LoadFS(fileutil.NewRealFS(""), path)
}

// LoadFS はfsysから曲を読み込む（ファイル名の大文字小文字は区別しない）
func LoadFS(fsys fileutil.FileSystem, name string) (*Song, error) {
	actual, err := fsys.FindFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	data, err := fsys.ReadFile(actual)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	s.Meta.Name = filepath.Base(actual)
	return s, nil
}

// header はMThdチャンクの内容
type header struct {
	format   int
	tracks   int
	division uint16
}

func (h header) smpte() bool {
	return h.division&0x8000 != 0
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFile, fmt.Sprintf(format, args...))
}

// readHeader validates the header chunk and checks that every declared track
// chunk lies entirely within data. Unknown chunk types are skipped.
func readHeader(data []byte) (header, error) {
	if len(data) < 8 || string(data[:4]) != "MThd" {
		return header{}, malformed("missing MThd signature")
	}
	length := uint64(binary.BigEndian.Uint32(data[4:8]))
	if length < 6 {
		return header{}, malformed("header length %d is too short", length)
	}
	if 8+length > uint64(len(data)) {
		return header{}, malformed("truncated header")
	}

	h := header{
		format:   int(binary.BigEndian.Uint16(data[8:10])),
		tracks:   int(binary.BigEndian.Uint16(data[10:12])),
		division: binary.BigEndian.Uint16(data[12:14]),
	}
	if h.format > 2 {
		return header{}, malformed("unsupported format %d", h.format)
	}
	if h.division == 0 {
		return header{}, malformed("time division is zero")
	}

	pos := 8 + length
	found := 0
	for found < h.tracks {
		if pos+8 > uint64(len(data)) {
			return header{}, malformed("expected %d tracks, found %d", h.tracks, found)
		}
		id := string(data[pos : pos+4])
		size := uint64(binary.BigEndian.Uint32(data[pos+4 : pos+8]))
		end := pos + 8 + size
		if end > uint64(len(data)) {
			return header{}, malformed("truncated chunk %q at offset %d", id, pos)
		}
		if id == "MTrk" {
			found++
		}
		pos = end
	}
	return h, nil
}

// trackData はトラック1本分の解析結果
type trackData struct {
	events  []timedMessage
	tempos  []TempoChange
	endTick uint64
}

type timedMessage struct {
	tick uint64
	msg  smf.Message
}

// Parse decodes a Standard MIDI File held in memory.
func Parse(data []byte) (*Song, error) {
	h, err := readHeader(data)
	if err != nil {
		return nil, err
	}

	meta := Metadata{Format: h.format, Tracks: h.tracks}
	if h.smpte() {
		meta.FramesPerSecond = int(-int8(h.division >> 8))
	} else {
		meta.TicksPerQuarter = int(h.division)
	}

	if h.tracks == 0 {
		s := newSong(nil, h.tempoMap(nil), meta)
		s.Meta.InitialBPM = s.Tempo.BPMAt(0)
		return s, nil
	}

	sm, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	if len(sm.Tracks) < h.tracks {
		return nil, malformed("decoded %d of %d tracks", len(sm.Tracks), h.tracks)
	}

	tracks := make([]trackData, h.tracks)
	var allTempos []TempoChange
	meta.TrackNames = make([]string, h.tracks)
	for i := 0; i < h.tracks; i++ {
		td := &tracks[i]
		var tick uint64
		if !sm.Tracks[i].IsClosed() {
			return nil, malformed("track %d has no end of track", i)
		}
		for _, ev := range sm.Tracks[i] {
			tick += uint64(ev.Delta)
			if !validMessage(ev.Message) {
				return nil, malformed("track %d: undefined event % X at tick %d", i, []byte(ev.Message), tick)
			}
			td.events = append(td.events, timedMessage{tick: tick, msg: ev.Message})

			var bpm float64
			var text string
			switch {
			case ev.Message.GetMetaTempo(&bpm):
				if bpm > 0 {
					td.tempos = append(td.tempos, TempoChange{
						Tick:             tick,
						MicrosPerQuarter: uint32(math.Round(60000000 / bpm)),
					})
				}
			case ev.Message.GetMetaTrackName(&text):
				if meta.TrackNames[i] == "" {
					meta.TrackNames[i] = decodeText(text)
				}
			case ev.Message.GetMetaCopyright(&text):
				if meta.Copyright == "" {
					meta.Copyright = decodeText(text)
				}
			case ev.Message.GetMetaText(&text):
				meta.Texts = append(meta.Texts, decodeText(text))
			}
		}
		td.endTick = tick
		allTempos = append(allTempos, td.tempos...)
	}

	// format 0/1 はテンポを全トラックで共有、format 2 はトラックごとに独立
	global := h.tempoMap(allTempos)
	var notes []NoteEvent
	for i := range tracks {
		tm := global
		if h.format == 2 {
			tm = h.tempoMap(tracks[i].tempos)
		}
		notes = append(notes, pairNotes(tracks[i], i, tm)...)
		if end := tm.Seconds(tracks[i].endTick); end > meta.EndOfTrack {
			meta.EndOfTrack = end
		}
	}

	assignHands(notes)

	s := newSong(notes, global, meta)
	s.Meta.InitialBPM = global.BPMAt(0)
	return s, nil
}

// validMessage は読み取ったイベントが正しい形かを返す。
// Running status is kept across undefined status bytes by the reader, so a
// stray 0xF1-0xFE shows up as a channel message with a data byte >= 0x80.
func validMessage(msg smf.Message) bool {
	if len(msg) == 0 {
		return false
	}
	switch status := msg[0]; {
	case status == 0xFF, status == 0xF0, status == 0xF7:
		return true
	case status < 0x80 || status > 0xEF:
		return false
	}
	for _, b := range msg[1:] {
		if b >= 0x80 {
			return false
		}
	}
	return msg.Type() != midi.UnknownMsg
}

func (h header) tempoMap(changes []TempoChange) *TempoMap {
	if h.smpte() {
		return NewTimeCodeMap(int(-int8(h.division>>8)), int(h.division&0xFF))
	}
	return NewTempoMap(int(h.division), changes)
}

type noteKey struct {
	channel uint8
	key     uint8
}

type openNote struct {
	tick     uint64
	velocity uint8
}

// pairNotes matches note-on with note-off (or note-on velocity 0) per
// channel and key, oldest first. Notes left open close at the track's last
// tick.
func pairNotes(td trackData, track int, tm *TempoMap) []NoteEvent {
	open := map[noteKey][]openNote{}
	var order []noteKey
	var notes []NoteEvent

	emit := func(k noteKey, on openNote, offTick uint64) {
		start := tm.Seconds(on.tick)
		notes = append(notes, NoteEvent{
			Pitch:    int(k.key),
			Velocity: int(on.velocity),
			Start:    start,
			Duration: tm.Seconds(offTick) - start,
			Channel:  int(k.channel),
			Track:    track,
		})
	}

	for _, ev := range td.events {
		var ch, key, vel uint8
		msg := midi.Message(ev.msg)
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			k := noteKey{ch, key}
			if _, ok := open[k]; !ok {
				order = append(order, k)
			}
			open[k] = append(open[k], openNote{tick: ev.tick, velocity: vel})
		case msg.GetNoteEnd(&ch, &key):
			k := noteKey{ch, key}
			queue := open[k]
			if len(queue) == 0 {
				continue
			}
			emit(k, queue[0], ev.tick)
			open[k] = queue[1:]
		}
	}

	// 閉じられていない音符はトラック終端で閉じる（順序を固定するためorderで走査）
	for _, k := range order {
		for _, on := range open[k] {
			emit(k, on, td.endTick)
		}
	}
	return notes
}
