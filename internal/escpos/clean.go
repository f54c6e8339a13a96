package escpos

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var blankRun = regexp.MustCompile(`\n\s*\n\s*\n`)

// Clean turns an ESC/POS stream into plain text for a print preview. Every
// command sequence this package emits is removed, including ones cut short at
// the end of the buffer, then the remaining control characters are dropped
// and runs of blank lines are collapsed.
func Clean(data []byte) string {
	text := stripCommands(data)

	var sb strings.Builder
	sb.Grow(len(text))
	for len(text) > 0 {
		r, size := utf8.DecodeRune(text)
		text = text[size:]
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if isPreviewControl(r) {
			continue
		}
		sb.WriteRune(r)
	}

	out := blankRun.ReplaceAllString(sb.String(), "\n\n")
	return strings.TrimSpace(out)
}

func stripCommands(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		n := commandLen(data[i:])
		if n == 0 {
			out = append(out, data[i])
			i++
			continue
		}
		i += n
	}
	return out
}

// commandLen returns the byte length of the command starting at p, clipped to
// len(p) when the sequence is truncated, or 0 when p does not start with one.
func commandLen(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	switch p[0] {
	case ESC:
		if len(p) < 2 {
			return 1
		}
		switch p[1] {
		case '@':
			return 2
		case 'R', 'a', '!', 'E', 'G', 'g', '3', '-', 'd':
			return clip(3, p)
		case '7':
			return clip(5, p)
		case '8':
			return clip(4, p)
		}
	case GS:
		if len(p) < 2 {
			return 1
		}
		switch p[1] {
		case 'V', 'h', 'w', 'H':
			return clip(3, p)
		case '(':
			// GS ( K pL pH payload
			if len(p) < 5 {
				return len(p)
			}
			return clip(5+int(p[3])+int(p[4])*256, p)
		case 'k':
			if len(p) < 3 {
				return len(p)
			}
			if p[2] >= 65 {
				// GS k m n d1..dn
				if len(p) < 4 {
					return len(p)
				}
				return clip(4+int(p[3]), p)
			}
			// GS k m d1..dk NUL
			for j := 3; j < len(p); j++ {
				if p[j] == 0x00 {
					return j + 1
				}
			}
			return len(p)
		}
	}
	return 0
}

func clip(n int, p []byte) int {
	if n > len(p) {
		return len(p)
	}
	return n
}

func isPreviewControl(r rune) bool {
	return (r >= 0x00 && r <= 0x08) ||
		(r >= 0x0B && r <= 0x1F) ||
		(r >= 0x7F && r <= 0x9F)
}
