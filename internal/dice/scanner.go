package dice

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// maxCount bounds both the multiplier and the face count of a Token.
const maxCount = math.MaxUint16

// Sentinel errors wrapped by ParseError.
var (
	// ErrEmptyInput is reported when the cleaned operand holds no dice at all.
	ErrEmptyInput = errors.New("nothing to roll")
	// ErrZeroFaces is reported for a d0.
	ErrZeroFaces = errors.New("a die needs at least one face")
	// ErrZeroMultiplier is reported for a 0dN.
	ErrZeroMultiplier = errors.New("at least one die must be rolled")
)

// Token is one parsed (multiplier, faces) pair, e.g. 2d6 is {2, 6}.
//
// Invariant: Multiplier >= 1 and Faces >= 1 for every Token a Scanner emits.
type Token struct {
	Multiplier uint16
	Faces      uint16
}

// String renders the token in dice notation.
func (t Token) String() string {
	return fmt.Sprintf("%dd%d", t.Multiplier, t.Faces)
}

// Kind classifies a ParseError.
type Kind int

const (
	KindEmptyInput Kind = iota + 1
	KindBadMultiplier
	KindBadFaces
	KindBadBoth
	KindMultiplierOutOfRange
	KindFacesOutOfRange
)

func (k Kind) String() string {
	switch k {
	case KindEmptyInput:
		return "empty input"
	case KindBadMultiplier:
		return "bad multiplier"
	case KindBadFaces:
		return "bad faces"
	case KindBadBoth:
		return "bad multiplier and faces"
	case KindMultiplierOutOfRange:
		return "multiplier out of range"
	case KindFacesOutOfRange:
		return "faces out of range"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseError describes a pair that could not be turned into a Token.
// MultiplierErr and FacesErr hold the underlying numeric failures; either
// may be nil when that half parsed.
type ParseError struct {
	Kind           Kind
	MultiplierText string
	FacesText      string
	MultiplierErr  error
	FacesErr       error
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case KindEmptyInput:
		return "dice: " + ErrEmptyInput.Error()
	case KindBadBoth:
		return fmt.Sprintf("dice: %s in %q/%q: %v; %v", e.Kind, e.MultiplierText, e.FacesText, e.MultiplierErr, e.FacesErr)
	case KindBadMultiplier, KindMultiplierOutOfRange:
		return fmt.Sprintf("dice: %s %q: %v", e.Kind, e.MultiplierText, e.MultiplierErr)
	default:
		return fmt.Sprintf("dice: %s %q: %v", e.Kind, e.FacesText, e.FacesErr)
	}
}

// Unwrap exposes the numeric errors so errors.Is matches strconv.ErrSyntax,
// strconv.ErrRange and the package sentinels.
func (e *ParseError) Unwrap() []error {
	if e.Kind == KindEmptyInput {
		return []error{ErrEmptyInput}
	}
	var errs []error
	if e.MultiplierErr != nil {
		errs = append(errs, e.MultiplierErr)
	}
	if e.FacesErr != nil {
		errs = append(errs, e.FacesErr)
	}
	return errs
}

type scanState int

const (
	seekingMultiplier scanState = iota
	seekingFaces
)

// Scanner reads Tokens from a cleaned operand one at a time. It is used the
// way bufio.Scanner is:
//
//	sc := NewScanner(Sanitize(raw))
//	for sc.Scan() {
//		tok := sc.Token()
//	}
//	if err := sc.Err(); err != nil { ... }
//
// Scanning stops at the first malformed pair.
type Scanner struct {
	src   string
	pos   int
	state scanState
	mult  []byte
	faces []byte
	tok   Token
	err   error
	done  bool
}

// NewScanner returns a Scanner over clean, which should come from Clean or
// Sanitize. Bytes outside the dice alphabet act as pair delimiters.
func NewScanner(clean string) *Scanner {
	s := &Scanner{src: clean}
	if clean == "" {
		s.err = &ParseError{Kind: KindEmptyInput}
		s.done = true
	}
	return s
}

// Scan advances to the next Token. It returns false at end of input or on
// the first error; Err distinguishes the two.
func (s *Scanner) Scan() bool {
	if s.done {
		return false
	}
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		s.pos++

		switch s.state {
		case seekingMultiplier:
			switch {
			case isDigit(c):
				s.mult = append(s.mult, c)
			case c == 'd':
				if len(s.mult) == 0 {
					s.mult = append(s.mult, '1')
				}
				s.state = seekingFaces
			}
		case seekingFaces:
			switch {
			case isDigit(c):
				s.faces = append(s.faces, c)
			case c == ' ' && len(s.faces) == 0:
				// "1d 20" reads as "1d20"
			case c == 'd':
				// The 'd' closes this pair and opens the next one with an
				// implicit multiplier of 1.
				if !s.emit() {
					return false
				}
				s.mult = append(s.mult, '1')
				return true
			default:
				if !s.emit() {
					return false
				}
				s.state = seekingMultiplier
				return true
			}
		}
	}

	s.done = true
	if s.state == seekingFaces || len(s.mult) > 0 {
		return s.emit()
	}
	return false
}

// Token returns the most recent Token produced by Scan.
func (s *Scanner) Token() Token {
	return s.tok
}

// Err returns the first error encountered, or nil at a clean end of input.
func (s *Scanner) Err() error {
	return s.err
}

// emit closes the pending pair, storing either the Token or the error, and
// resets both buffers.
func (s *Scanner) emit() bool {
	tok, err := closePair(string(s.mult), string(s.faces))
	s.mult = s.mult[:0]
	s.faces = s.faces[:0]
	if err != nil {
		s.err = err
		s.done = true
		return false
	}
	s.tok = tok
	return true
}

func closePair(multText, facesText string) (Token, error) {
	mult, mErr := parseCount(multText, ErrZeroMultiplier)
	faces, fErr := parseCount(facesText, ErrZeroFaces)

	var kind Kind
	switch {
	case mErr == nil && fErr == nil:
		return Token{Multiplier: mult, Faces: faces}, nil
	case mErr != nil && fErr != nil:
		kind = KindBadBoth
	case mErr != nil:
		kind = KindBadMultiplier
		if errors.Is(mErr, strconv.ErrRange) {
			kind = KindMultiplierOutOfRange
		}
	default:
		kind = KindBadFaces
		if errors.Is(fErr, strconv.ErrRange) {
			kind = KindFacesOutOfRange
		}
	}
	return Token{}, &ParseError{
		Kind:           kind,
		MultiplierText: multText,
		FacesText:      facesText,
		MultiplierErr:  mErr,
		FacesErr:       fErr,
	}
}

// parseCount parses an unsigned 16-bit count, rejecting zero with zeroErr.
func parseCount(text string, zeroErr error) (uint16, error) {
	v, err := strconv.ParseUint(text, 10, 16)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, zeroErr
	}
	return uint16(v), nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Scan tokenizes a whole cleaned operand.
//
// Postcondition: On error, the returned slice holds the tokens read before
// the malformed pair.
func Scan(clean string) ([]Token, error) {
	sc := NewScanner(clean)
	var toks []Token
	for sc.Scan() {
		toks = append(toks, sc.Token())
	}
	return toks, sc.Err()
}
