// Package word accumulates recognized letters into the word being signed.
package word

import "strings"

// Gate filters predictions before they reach the word.
//
// The zero Gate accepts every prediction, so a sign held for N frames adds
// N letters. StableFrames > 1 requires that many consecutive identical labels
// at or above MinConfidence before the letter is added once; the label must
// then change before it can be added again.
type Gate struct {
	MinConfidence float64
	StableFrames  int
}

// Accumulator owns the ordered letters of the current word. It is not safe
// for concurrent use; the session controller is its only writer.
type Accumulator struct {
	gate    Gate
	letters []string

	candidate string
	streak    int
	latched   bool
}

// New creates an empty Accumulator.
func New(gate Gate) *Accumulator {
	return &Accumulator{gate: gate}
}

// Append adds letter to the end of the word unconditionally.
func (a *Accumulator) Append(letter string) {
	a.letters = append(a.letters, letter)
}

// Offer passes one prediction through the gate and appends it when the gate
// lets it through. It reports whether the word grew.
func (a *Accumulator) Offer(letter string, confidence float64) bool {
	if confidence < a.gate.MinConfidence {
		a.candidate, a.streak, a.latched = "", 0, false
		return false
	}

	if a.gate.StableFrames <= 1 {
		a.Append(letter)
		return true
	}

	if letter == a.candidate {
		a.streak++
	} else {
		a.candidate, a.streak, a.latched = letter, 1, false
	}

	if a.streak >= a.gate.StableFrames && !a.latched {
		a.latched = true
		a.Append(letter)
		return true
	}
	return false
}

// Clear empties the word and forgets any pending candidate.
func (a *Accumulator) Clear() {
	a.letters = nil
	a.candidate, a.streak, a.latched = "", 0, false
}

// Current returns a copy of the letters in order.
func (a *Accumulator) Current() []string {
	out := make([]string, len(a.letters))
	copy(out, a.letters)
	return out
}

// Len returns the number of letters in the word.
func (a *Accumulator) Len() int {
	return len(a.letters)
}

// String returns the word as text.
func (a *Accumulator) String() string {
	return strings.Join(a.letters, "")
}
