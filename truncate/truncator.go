package truncate

import (
	"unicode/utf8"

	"github.com/randalmurphal/council/tokens"
)

// Strategy defines how text is truncated.
type Strategy int

const (
	// FromEnd removes content from the end (default).
	FromEnd Strategy = iota

	// FromMiddle removes content from the middle, keeping start and end.
	FromMiddle

	// FromStart removes content from the start.
	FromStart
)

// Unit is what a limit is measured in.
type Unit int

const (
	// Tokens measures limits with a tokens.Counter (default).
	Tokens Unit = iota

	// Runes measures limits in characters.
	Runes
)

// DefaultEndSuffix is the default suffix for end truncation.
const DefaultEndSuffix = "..."

// DefaultMiddleSuffix is the default suffix for middle truncation.
const DefaultMiddleSuffix = "\n...[content truncated]...\n"

// DefaultStartSuffix is the default suffix for start truncation.
const DefaultStartSuffix = "..."

// Truncator shortens text to fit a limit. The suffix counts toward the
// limit, so a truncated result never exceeds it unless the limit is smaller
// than the suffix itself.
type Truncator struct {
	counter   tokens.Counter
	unit      Unit
	strategy  Strategy
	suffix    string
	lineBreak float64
}

// New creates a token-measured truncator with the given strategy.
func New(strategy Strategy) *Truncator {
	suffix := DefaultEndSuffix
	if strategy == FromMiddle {
		suffix = DefaultMiddleSuffix
	}
	return &Truncator{
		counter:  tokens.NewEstimatingCounter(),
		strategy: strategy,
		suffix:   suffix,
	}
}

// NewFromEnd creates a truncator that removes content from the end.
func NewFromEnd() *Truncator {
	return New(FromEnd)
}

// NewFromMiddle creates a truncator that removes content from the middle.
func NewFromMiddle() *Truncator {
	return New(FromMiddle)
}

// NewFromStart creates a truncator that removes content from the start.
func NewFromStart() *Truncator {
	return New(FromStart)
}

// WithCounter sets a custom token counter.
func (t *Truncator) WithCounter(counter tokens.Counter) *Truncator {
	t.counter = counter
	return t
}

// WithUnit sets the unit limits are measured in.
func (t *Truncator) WithUnit(unit Unit) *Truncator {
	t.unit = unit
	return t
}

// WithSuffix sets a custom suffix for truncation.
func (t *Truncator) WithSuffix(suffix string) *Truncator {
	t.suffix = suffix
	return t
}

// WithLineBreak makes end truncation cut at the last newline of the kept
// text when that newline lies past minFraction of it. Values outside (0, 1)
// disable the behavior.
func (t *Truncator) WithLineBreak(minFraction float64) *Truncator {
	t.lineBreak = minFraction
	return t
}

// Truncate reduces the text to fit within limit.
// Returns the truncated text and whether truncation occurred.
func (t *Truncator) Truncate(text string, limit int) (string, bool) {
	if t.fits(text, limit) {
		return text, false
	}

	switch t.strategy {
	case FromMiddle:
		return t.truncateMiddle(text, limit), true
	case FromStart:
		return t.truncateStart(text, limit), true
	default:
		return t.truncateEnd(text, limit), true
	}
}

// Strategy returns the truncator's strategy.
func (t *Truncator) Strategy() Strategy {
	return t.strategy
}

// Suffix returns the truncator's suffix.
func (t *Truncator) Suffix() string {
	return t.suffix
}

func (t *Truncator) measure(text string) int {
	if t.unit == Runes {
		return utf8.RuneCountInString(text)
	}
	return t.counter.Count(text)
}

func (t *Truncator) fits(text string, limit int) bool {
	return t.measure(text) <= limit
}
