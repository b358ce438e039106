package telnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestColorize(t *testing.T) {
	assert.Equal(t, "\033[31mdanger\033[0m", Colorize(Red, "danger"))
}

func TestStripANSI(t *testing.T) {
	input := "\033[31mred\033[0m normal \033[1;32mbold green\033[0m"
	assert.Equal(t, "red normal bold green", StripANSI(input))
}

func TestStripANSI_RemovesCursorControl(t *testing.T) {
	assert.Equal(t, "ab", StripANSI("a\033[2J\033[Hb"))
	assert.Equal(t, "line", StripANSI("li\r\nne\a"))
	assert.Equal(t, "x", StripANSI("x\033[31"))
}

func TestStripANSI_KeepsUnicode(t *testing.T) {
	assert.Equal(t, "héllo wörld", StripANSI("héllo wörld"))
}

func TestSenderColor_Stable(t *testing.T) {
	assert.Equal(t, SenderColor("alice"), SenderColor("alice"))
	assert.Contains(t, senderPalette, SenderColor("bob"))
}

func TestPropertyStripANSILeavesNoControlBytes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")
		out := StripANSI(s)
		for i := 0; i < len(out); i++ {
			if out[i] < 0x20 || out[i] == 0x7f {
				t.Fatalf("control byte %#x left in %q", out[i], out)
			}
		}
		if StripANSI(out) != out {
			t.Fatalf("StripANSI not idempotent on %q", s)
		}
	})
}
