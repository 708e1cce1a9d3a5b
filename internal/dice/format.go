package dice

import (
	"errors"
	"fmt"
	"strings"
)

// listLimit is the result count from which individual dice are no longer
// listed under their group.
const listLimit = 10

// TooManyDiceLine replaces the per-die listing of large groups.
const TooManyDiceLine = "  >: | Thats a lot of dice, you'll just have to trust me."

// Format renders an Outcome for display:
//
//	Result: 19.
//	2 x d6 - 7
//	  3
//	  4
//	1 x d20 - 12
//
// The "Result:" header is omitted when there is a single group.
//
// Postcondition: Returns "" for an empty outcome.
func Format(o *Outcome) string {
	if o == nil || o.Len() == 0 {
		return ""
	}

	var lines []string
	if o.Len() > 1 {
		lines = append(lines, fmt.Sprintf("Result: %d.", o.GrandTotal))
	}
	for _, g := range o.Groups() {
		lines = append(lines, fmt.Sprintf("%d x d%d - %d", g.Multiplier, g.Faces, g.Total))
		switch n := len(g.Results); {
		case n >= listLimit:
			lines = append(lines, TooManyDiceLine)
		case n > 1:
			for _, r := range g.Results {
				lines = append(lines, fmt.Sprintf("  %d", r))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// FormatError renders a user-facing message for a failed evaluation of
// operand. partial holds whatever was rolled before the failure and is
// appended under "VALID DICE:" when non-empty.
func FormatError(operand string, err error, partial *Outcome) string {
	var b strings.Builder

	var pe *ParseError
	switch {
	case errors.As(err, &pe):
		b.WriteString(describeParseError(operand, pe))
	case errors.Is(err, ErrTooManyDice):
		fmt.Fprintf(&b, "Could not roll '%s': %v.", operand, err)
	default:
		fmt.Fprintf(&b, "Could not roll '%s':\n\n  ERROR: %v", operand, err)
	}

	if valid := Format(partial); valid != "" {
		b.WriteString("\n\nVALID DICE:\n")
		b.WriteString(valid)
	}
	return b.String()
}

func describeParseError(operand string, pe *ParseError) string {
	switch pe.Kind {
	case KindEmptyInput:
		return "Nothing to roll. Try something like 2d6 1d20."
	case KindBadBoth:
		return fmt.Sprintf(
			"Could not roll '%s': neither '%s' nor '%s' make a parsable dice roll:\n\n  ERROR: %v\n  ERROR: %v",
			operand, pe.MultiplierText, pe.FacesText, pe.MultiplierErr, pe.FacesErr,
		)
	case KindBadMultiplier:
		return fmt.Sprintf(
			"Could not roll '%s': '%s' cannot be parsed as a multiplier, but d'%s' looks like a nice dice string:\n\n  ERROR: %v",
			operand, pe.MultiplierText, pe.FacesText, pe.MultiplierErr,
		)
	case KindMultiplierOutOfRange:
		return fmt.Sprintf(
			"Could not roll '%s': '%s' is more dice than I can hold at once (at most %d):\n\n  ERROR: %v",
			operand, pe.MultiplierText, maxCount, pe.MultiplierErr,
		)
	case KindFacesOutOfRange:
		return fmt.Sprintf(
			"Could not roll '%s': d'%s' has too many faces (at most d%d):\n\n  ERROR: %v",
			operand, pe.FacesText, maxCount, pe.FacesErr,
		)
	default:
		return fmt.Sprintf(
			"Could not roll '%s': the multiplier '%s' looks right to me, but d'%s' cannot be parsed as a dice string:\n\n  ERROR: %v",
			operand, pe.MultiplierText, pe.FacesText, pe.FacesErr,
		)
	}
}
