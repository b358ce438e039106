package telnet

import (
	"hash/fnv"
	"strings"
)

// ANSI escape sequences used when rendering chat lines.
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"

	BrightRed     = "\033[91m"
	BrightGreen   = "\033[92m"
	BrightYellow  = "\033[93m"
	BrightBlue    = "\033[94m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"
)

// senderPalette is the set of colours a display name can hash to.
var senderPalette = []string{
	Red, Green, Yellow, Blue, Magenta, Cyan,
	BrightRed, BrightGreen, BrightYellow, BrightBlue, BrightMagenta, BrightCyan,
}

// Colorize wraps text with the given ANSI colour code and a reset suffix.
//
// Precondition: color must be a valid ANSI escape sequence.
func Colorize(color, text string) string {
	return color + text + Reset
}

// SenderColor picks a stable colour for a display name so each participant
// keeps the same colour across messages and sessions.
func SenderColor(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return senderPalette[h.Sum32()%uint32(len(senderPalette))]
}

// StripANSI removes CSI escape sequences and other control characters, so
// relayed text cannot restyle or move the recipient's cursor.
//
// Postcondition: The result contains no bytes below 0x20 and no DEL.
func StripANSI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\033' {
			if i+1 < len(s) && s[i+1] == '[' {
				j := i + 2
				for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
					j++
				}
				i = j
			}
			continue
		}
		if c < 0x20 || c == 0x7f {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
