// Package practice runs the "sign this letter" challenge on top of the
// prediction stream.
package practice

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/signa/internal/events"
)

// ErrNoLetters is returned when a challenge is created without letters.
var ErrNoLetters = errors.New("challenge needs at least one letter")

// Publisher receives challenge events.
type Publisher interface {
	Publish(e events.Event)
}

// Challenge holds the current target letter and the score. It is safe for
// concurrent use.
type Challenge struct {
	mu       sync.Mutex
	letters  []string
	rng      *rand.Rand
	target   string
	points   int
	attempts int
	solved   string
}

// New creates a challenge drawing targets from the distinct non-empty letters. The same seed yields
// the same sequence of targets.
func New(letters []string, seed uint64) (*Challenge, error) {
	letters = distinct(letters)
	if len(letters) == 0 {
		return nil, ErrNoLetters
	}

	c := &Challenge{
		letters: letters,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	c.target = c.draw()
	return c, nil
}

// Target returns the letter the user should sign.
func (c *Challenge) Target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Score returns the points earned so far.
func (c *Challenge) Score() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.points
}

// State returns the challenge as an event payload.
func (c *Challenge) State() events.Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

// Next skips to a new target without scoring.
func (c *Challenge) Next() events.Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.target = c.draw()
	c.attempts = 0
	c.solved = ""
	return c.state()
}

// Check compares a recognized letter with the target. A match scores a
// point and draws the next target. It reports whether the letter matched.
func (c *Challenge) Check(letter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts++
	if letter != c.target {
		return false
	}

	c.points++
	c.solved = c.target
	c.target = c.draw()
	c.attempts = 0
	return true
}

// Watch checks every prediction that reached the word until ctx is canceled
// or the stream closes, publishing the challenge after each solved target.
func (c *Challenge) Watch(ctx context.Context, stream <-chan events.Event, pub Publisher, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-stream:
			if !ok {
				return
			}
			if e.Kind != events.KindPrediction || e.Prediction == nil || !e.Prediction.Appended {
				continue
			}
			if c.Check(e.Prediction.Label) {
				state := c.State()
				logger.Info("challenge solved",
					zap.String("letter", state.Solved),
					zap.Int("points", state.Points),
					zap.String("next", state.Target),
				)
				pub.Publish(events.NewChallenge(state))
			}
		}
	}
}

func (c *Challenge) state() events.Challenge {
	return events.Challenge{
		Target:   c.target,
		Points:   c.points,
		Solved:   c.solved,
		Attempts: c.attempts,
	}
}

// draw picks a target, avoiding the current one when there is a choice.
func (c *Challenge) draw() string {
	if len(c.letters) == 1 {
		return c.letters[0]
	}
	for {
		next := c.letters[c.rng.IntN(len(c.letters))]
		if next != c.target {
			return next
		}
	}
}

// distinct returns the non-empty letters in order with repeats removed.
func distinct(letters []string) []string {
	seen := make(map[string]bool, len(letters))
	out := make([]string, 0, len(letters))
	for _, l := range letters {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
