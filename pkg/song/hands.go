package song

// assignHands tags each note with a hand. Two channels in use: the channel
// with the higher mean pitch is the right hand. Otherwise two note-bearing
// tracks are treated the same way. Anything else is split at middle C.
func assignHands(notes []NoteEvent) {
	if left, right, ok := twoGroups(notes, func(n NoteEvent) int { return n.Channel }); ok {
		tagByGroup(notes, func(n NoteEvent) int { return n.Channel }, left, right)
		return
	}
	if left, right, ok := twoGroups(notes, func(n NoteEvent) int { return n.Track }); ok {
		tagByGroup(notes, func(n NoteEvent) int { return n.Track }, left, right)
		return
	}
	tagByPitch(notes, MiddleC)
}

// twoGroups キーがちょうど2種類の場合、平均音高の低い方を左、高い方を右として返す
func twoGroups(notes []NoteEvent, key func(NoteEvent) int) (left, right int, ok bool) {
	sum := map[int]int{}
	count := map[int]int{}
	var keys []int
	for _, n := range notes {
		k := key(n)
		if _, seen := count[k]; !seen {
			keys = append(keys, k)
			if len(keys) > 2 {
				return 0, 0, false
			}
		}
		sum[k] += n.Pitch
		count[k]++
	}
	if len(keys) != 2 {
		return 0, 0, false
	}

	a, b := keys[0], keys[1]
	if a > b {
		a, b = b, a
	}
	meanA := float64(sum[a]) / float64(count[a])
	meanB := float64(sum[b]) / float64(count[b])
	// 平均が同じ場合は番号の小さい方を右手とする（チャンネル0が右手の慣例）
	if meanA >= meanB {
		return b, a, true
	}
	return a, b, true
}

func tagByGroup(notes []NoteEvent, key func(NoteEvent) int, left, right int) {
	for i := range notes {
		switch key(notes[i]) {
		case left:
			notes[i].Hand = HandLeft
		case right:
			notes[i].Hand = HandRight
		}
	}
}

func tagByPitch(notes []NoteEvent, split int) {
	for i := range notes {
		if notes[i].Pitch < split {
			notes[i].Hand = HandLeft
		} else {
			notes[i].Hand = HandRight
		}
	}
}

// SplitByPitch は split 未満を左手、それ以上を右手とした新しい曲を返す
func (s *Song) SplitByPitch(split int) *Song {
	notes := make([]NoteEvent, len(s.Notes))
	copy(notes, s.Notes)
	tagByPitch(notes, split)
	return s.withNotes(notes)
}

// SplitByChannels はチャンネルで左右を割り当てた新しい曲を返す。
// どちらにも含まれないチャンネルは中央のCで分ける
func (s *Song) SplitByChannels(left, right []int) *Song {
	hand := map[int]Hand{}
	for _, ch := range left {
		hand[ch] = HandLeft
	}
	for _, ch := range right {
		hand[ch] = HandRight
	}

	notes := make([]NoteEvent, len(s.Notes))
	copy(notes, s.Notes)
	for i := range notes {
		if h, ok := hand[notes[i].Channel]; ok {
			notes[i].Hand = h
		} else if notes[i].Pitch < MiddleC {
			notes[i].Hand = HandLeft
		} else {
			notes[i].Hand = HandRight
		}
	}
	return s.withNotes(notes)
}
