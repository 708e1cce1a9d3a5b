package dice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/cory-johannsen/rollbot/internal/dice"

var tracer = otel.Tracer(instrumentationName)

// EvaluationError is returned by Roller.Evaluate. Its Error text is the
// user-facing message and is safe to send back verbatim.
type EvaluationError struct {
	// Operand is the text after the command token, before cleaning.
	Operand string
	// Partial holds every die rolled before the failure.
	Partial *Outcome
	// Err is the underlying *ParseError, ErrTooManyDice or context error.
	Err error
}

func (e *EvaluationError) Error() string {
	return FormatError(e.Operand, e.Err, e.Partial)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Roller wraps a Source and logger to provide logged, instrumented
// evaluation of dice commands. Every evaluation is logged with a roll id;
// every token roll is logged at debug level.
//
// A Roller is safe for concurrent use when its Source is.
type Roller struct {
	src     Source
	logger  *zap.Logger
	maxDice uint64

	evaluations metric.Int64Counter
	diceRolled  metric.Int64Counter
}

// NewLoggedRoller creates a Roller that rolls with src and logs to logger.
// maxDice caps the dice rolled per evaluation; 0 means no cap.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger, maxDice uint64) *Roller {
	r := &Roller{src: src, logger: logger, maxDice: maxDice}

	meter := otel.Meter(instrumentationName)
	var err error
	r.evaluations, err = meter.Int64Counter("rollbot.evaluations",
		metric.WithDescription("Dice commands evaluated"),
		metric.WithUnit("{evaluation}"))
	if err != nil {
		logger.Warn("creating evaluations counter", zap.Error(err))
	}
	r.diceRolled, err = meter.Int64Counter("rollbot.dice",
		metric.WithDescription("Individual dice rolled"),
		metric.WithUnit("{die}"))
	if err != nil {
		logger.Warn("creating dice counter", zap.Error(err))
	}
	return r
}

// Evaluate rolls the dice command raw, e.g. "!roll 2d6 1d8", and returns the
// formatted outcome. On failure the error is an *EvaluationError whose
// message describes the problem and what did register.
//
// Postcondition: exactly one of the results is non-zero.
func (r *Roller) Evaluate(ctx context.Context, raw string) (string, error) {
	outcome, err := r.EvaluateOutcome(ctx, raw)
	if err != nil {
		return "", err
	}
	return Format(outcome), nil
}

// EvaluateOutcome is Evaluate without the final formatting step.
func (r *Roller) EvaluateOutcome(ctx context.Context, raw string) (*Outcome, error) {
	start := time.Now()
	rollID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "dice.Evaluate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("roll.id", rollID)),
	)
	defer span.End()

	operand := StripCommand(raw)
	clean := Clean(operand)
	span.SetAttributes(attribute.String("roll.operand", clean))

	outcome, err := RollAll(ctx, clean, r.src, r.maxDice, r.logRoll(rollID))
	if r.evaluations != nil {
		r.evaluations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", err == nil)))
	}
	if r.diceRolled != nil {
		r.diceRolled.Add(ctx, int64(outcome.DiceCount()))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		r.logger.Warn("dice evaluation failed",
			zap.String("roll_id", rollID),
			zap.String("operand", operand),
			zap.Error(err),
			zap.Int("valid_groups", outcome.Len()),
		)
		return nil, &EvaluationError{Operand: operand, Partial: outcome, Err: err}
	}

	r.logger.Info("dice evaluated",
		zap.String("roll_id", rollID),
		zap.String("operand", clean),
		zap.Int("groups", outcome.Len()),
		zap.Uint64("dice", outcome.DiceCount()),
		zap.Uint64("grand_total", outcome.GrandTotal),
		zap.Duration("elapsed", time.Since(start)),
	)
	return outcome, nil
}

func (r *Roller) logRoll(rollID string) RollFunc {
	return func(tok Token, draws []uint16) {
		if ce := r.logger.Check(zap.DebugLevel, "dice roll"); ce != nil {
			var total uint64
			for _, d := range draws {
				total += uint64(d)
			}
			ce.Write(
				zap.String("roll_id", rollID),
				zap.Uint16("multiplier", tok.Multiplier),
				zap.Uint16("faces", tok.Faces),
				zap.Uint64("total", total),
			)
		}
	}
}
