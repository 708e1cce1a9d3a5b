// Package dice turns chat-style dice commands such as "!roll 2d6 1d20" into
// rolled, grouped and formatted outcomes.
package dice

import (
	"context"
	"errors"
	"fmt"
)

// ErrTooManyDice is returned when an evaluation would roll more dice than
// the configured ceiling.
var ErrTooManyDice = errors.New("too many dice")

// Roll draws tok.Multiplier independent dice from src.
//
// Precondition: tok came from a Scanner (Faces >= 1); src must be non-nil.
// Postcondition: len(result) == tok.Multiplier and every value is in [1, tok.Faces].
func Roll(tok Token, src Source) []uint16 {
	draws := make([]uint16, tok.Multiplier)
	for i := range draws {
		draws[i] = uint16(src.Intn(int(tok.Faces)) + 1)
	}
	return draws
}

// RollFunc observes each token as it is rolled.
type RollFunc func(tok Token, draws []uint16)

// RollAll scans clean and rolls every token into a fresh Outcome. maxDice
// caps the number of dice rolled; 0 means no cap. onRoll may be nil.
//
// Postcondition: On error the returned Outcome holds every token rolled
// before the failure and is never nil.
func RollAll(ctx context.Context, clean string, src Source, maxDice uint64, onRoll RollFunc) (*Outcome, error) {
	outcome := NewOutcome()
	sc := NewScanner(clean)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		tok := sc.Token()
		if maxDice > 0 && outcome.DiceCount()+uint64(tok.Multiplier) > maxDice {
			return outcome, fmt.Errorf("%w: %s would exceed %d dice", ErrTooManyDice, tok, maxDice)
		}
		draws := Roll(tok, src)
		if onRoll != nil {
			onRoll(tok, draws)
		}
		outcome.Add(tok, draws)
	}
	if err := sc.Err(); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// RollExpr sanitizes and rolls raw, which includes its command token, in a
// single call with no dice ceiling.
func RollExpr(raw string, src Source) (*Outcome, error) {
	return RollAll(context.Background(), Sanitize(raw), src, 0, nil)
}
