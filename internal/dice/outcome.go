package dice

// Group holds every die of one face count rolled in a single evaluation.
//
// Invariant: Total == sum(Results) and len(Results) == Multiplier.
type Group struct {
	Faces      uint16
	Multiplier uint64
	Total      uint64
	Results    []uint16
}

// Outcome is the aggregated result of one evaluation. Groups are keyed by
// face count and kept in the order their face count first appeared.
//
// Invariant: GrandTotal == sum of every group's Total.
type Outcome struct {
	GrandTotal uint64

	groups map[uint16]*Group
	order  []uint16
}

// NewOutcome returns an empty Outcome.
func NewOutcome() *Outcome {
	return &Outcome{groups: make(map[uint16]*Group)}
}

// Add merges the draws for tok into the group for tok.Faces, creating the
// group on first use. Tokens sharing a face count pool together.
//
// Precondition: draws came from Roll(tok, ...).
func (o *Outcome) Add(tok Token, draws []uint16) {
	if o.groups == nil {
		o.groups = make(map[uint16]*Group)
	}
	g, ok := o.groups[tok.Faces]
	if !ok {
		g = &Group{Faces: tok.Faces}
		o.groups[tok.Faces] = g
		o.order = append(o.order, tok.Faces)
	}

	var sum uint64
	for _, d := range draws {
		sum += uint64(d)
	}
	g.Results = append(g.Results, draws...)
	g.Total += sum
	g.Multiplier += uint64(tok.Multiplier)
	o.GrandTotal += sum
}

// Groups returns the groups in first-seen order.
func (o *Outcome) Groups() []*Group {
	out := make([]*Group, 0, len(o.order))
	for _, faces := range o.order {
		out = append(out, o.groups[faces])
	}
	return out
}

// Group returns the group for faces, if any.
func (o *Outcome) Group(faces uint16) (*Group, bool) {
	g, ok := o.groups[faces]
	return g, ok
}

// Len returns the number of groups.
func (o *Outcome) Len() int {
	return len(o.order)
}

// DiceCount returns the number of dice rolled across all groups.
func (o *Outcome) DiceCount() uint64 {
	var n uint64
	for _, g := range o.groups {
		n += g.Multiplier
	}
	return n
}

// String renders the outcome with Format.
func (o *Outcome) String() string {
	return Format(o)
}
