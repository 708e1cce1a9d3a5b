package command

import "strings"

// ParseResult holds the parsed command name and arguments from a text line.
type ParseResult struct {
	// Prefixed reports whether the line started with the command prefix.
	// Lines without it are ordinary chat and carry no command.
	Prefixed bool
	// Command is the first word of the input without the prefix, lowercased.
	Command string
	// Args are the remaining words after the command.
	Args []string
	// RawArgs is the raw text after the command, with inner spacing preserved.
	RawArgs string
}

// Parse splits a chat line such as "!roll 2d6 1d8" into a command and
// arguments. prefix is the command sigil.
//
// Precondition: prefix must be non-empty.
// Postcondition: Returns a ParseResult. If line does not start with prefix,
// Prefixed is false and Command is empty.
func Parse(line, prefix string) ParseResult {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, prefix) {
		return ParseResult{}
	}
	line = line[len(prefix):]

	spaceIdx := strings.IndexAny(line, " \t")
	if spaceIdx < 0 {
		return ParseResult{Prefixed: true, Command: strings.ToLower(line)}
	}

	rest := strings.TrimSpace(line[spaceIdx+1:])
	var args []string
	if rest != "" {
		args = strings.Fields(rest)
	}

	return ParseResult{
		Prefixed: true,
		Command:  strings.ToLower(line[:spaceIdx]),
		Args:     args,
		RawArgs:  rest,
	}
}
