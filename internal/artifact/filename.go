package artifact

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxDownloadNameRunes = 120

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// DownloadName builds an ASCII-safe filename for Content-Disposition from a
// video title, falling back to fallback when nothing printable remains. ext
// includes the leading dot.
func DownloadName(title, fallback, ext string) string {
	folded, _, err := transform.String(stripMarks, title)
	if err != nil {
		folded = title
	}
	var b strings.Builder
	pendingSpace := false
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '(' || r == ')':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		default:
			pendingSpace = true
		}
		if b.Len() >= maxDownloadNameRunes {
			break
		}
	}
	name := strings.TrimSpace(b.String())
	if name == "" {
		name = fallback
	}
	return name + ext
}
