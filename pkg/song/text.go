package song

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// decodeText メタイベントのテキストをUTF-8に変換する。
// UTF-8として正しければそのまま、Shift-JISとして読めればShift-JIS、
// それ以外はWindows-1252として扱う
func decodeText(s string) string {
	s = strings.TrimRight(s, "\x00")
	if utf8.ValidString(s) {
		return s
	}

	if out, _, err := transform.String(japanese.ShiftJIS.NewDecoder(), s); err == nil && !strings.ContainsRune(out, utf8.RuneError) {
		return out
	}

	out, _, err := transform.String(charmap.Windows1252.NewDecoder(), s)
	if err != nil {
		return strings.ToValidUTF8(s, "?")
	}
	return out
}
