package telnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestColorize(t *testing.T) {
	assert.Equal(t, "\033[31mdanger\033[0m", Colorize(Red, "danger"))
}

func TestColorize_PerLine(t *testing.T) {
	got := Colorize(Green, "Result: 9.\n2 x d4 - 5\n\n  1")
	want := Green + "Result: 9." + Reset + "\n" +
		Green + "2 x d4 - 5" + Reset + "\n" +
		"\n" +
		Green + "  1" + Reset
	assert.Equal(t, want, got)
}

func TestColorize_Empty(t *testing.T) {
	assert.Equal(t, "", Colorize(Red, ""))
}

func TestStripANSI(t *testing.T) {
	input := "\033[31mred\033[0m normal \033[1m\033[32mbold green\033[0m"
	assert.Equal(t, "red normal bold green", StripANSI(input))
}

func TestStripANSI_NoEscapes(t *testing.T) {
	input := "plain text"
	assert.Equal(t, input, StripANSI(input))
}

// Property: stripping a colorized string yields the original text.
func TestPropertyColorizeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[a-zA-Z0-9 .:\n-]{0,80}`).Draw(t, "text")
		color := rapid.SampledFrom([]string{Red, Green, Yellow, Cyan, Bold, Dim}).Draw(t, "color")
		assert.Equal(t, text, StripANSI(Colorize(color, text)))
	})
}
