package dice

import "strings"

// StripCommand removes the leading command token (e.g. "!roll") and returns
// the remaining operand text unchanged.
//
// Postcondition: Returns "" when raw holds no text after the first word.
func StripCommand(raw string) string {
	raw = strings.TrimLeft(raw, " \t\r\n")
	idx := strings.IndexAny(raw, " \t\r\n")
	if idx < 0 {
		return ""
	}
	return raw[idx+1:]
}

// Clean reduces operand text to the dice alphabet: ASCII digits, single
// spaces and a lowercase 'd'. Runs of spaces collapse to one and the result
// is trimmed.
//
// Postcondition: Clean(Clean(s)) == Clean(s).
func Clean(operand string) string {
	var b strings.Builder
	b.Grow(len(operand))
	space := false
	for i := 0; i < len(operand); i++ {
		c := operand[i]
		switch {
		case c >= '0' && c <= '9':
		case c == 'd' || c == 'D':
			c = 'd'
		case c == ' ':
			if b.Len() > 0 {
				space = true
			}
			continue
		default:
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Sanitize strips the command token from raw and cleans the operand.
func Sanitize(raw string) string {
	return Clean(StripCommand(raw))
}
