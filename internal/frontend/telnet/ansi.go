// Package telnet provides the Telnet transport for the roll bot: a TCP
// acceptor, IAC-aware line reading and ANSI styling of replies.
package telnet

// ANSI escape codes used to style replies.
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"

	BrightWhite = "\033[97m"
)

// Colorize wraps every line of text with the given ANSI color code and a
// reset suffix, so a multi-line reply stays styled on clients that reset
// attributes at line ends.
//
// Postcondition: StripANSI(Colorize(c, text)) == text.
func Colorize(color, text string) string {
	if text == "" {
		return ""
	}
	out := make([]byte, 0, len(text)+16)
	start := 0
	for i := 0; i <= len(text); i++ {
		if i < len(text) && text[i] != '\n' {
			continue
		}
		if i > start {
			out = append(out, color...)
			out = append(out, text[start:i]...)
			out = append(out, Reset...)
		}
		if i < len(text) {
			out = append(out, '\n')
		}
		start = i + 1
	}
	return string(out)
}

// StripANSI removes all ANSI escape sequences from a string.
//
// Postcondition: Returns text with all \033[...m sequences removed.
func StripANSI(s string) string {
	result := make([]byte, 0, len(s))
	i := 0
	for i < len(s) {
		if s[i] == '\033' && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			if j < len(s) {
				i = j + 1
				continue
			}
		}
		result = append(result, s[i])
		i++
	}
	return string(result)
}
