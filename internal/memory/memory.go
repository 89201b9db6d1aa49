// Package memory keeps a session's working history short: images in older
// turns are replaced by captions and old turns are folded into the summary.
package memory

import (
	"context"
	"time"

	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/ChamsBouzaiene/jewelbot/internal/oracle"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
)

const (
	// DefaultThreshold is the number of turns kept before folding starts.
	DefaultThreshold = 6
	// DefaultFold is how many of the oldest turns are folded at once.
	DefaultFold = 2
)

// Report describes what a compaction changed.
type Report struct {
	Captioned bool
	Folded    int
	Turns     int
}

// Changed reports whether the session was modified.
func (r Report) Changed() bool { return r.Captioned || r.Folded > 0 }

// Compactor captions and folds session history.
type Compactor struct {
	captioner  oracle.Captioner
	summarizer oracle.Summarizer
	threshold  int
	fold       int
	timeout    time.Duration
}

// Option configures a Compactor.
type Option func(*Compactor)

// WithThreshold sets the turn count above which folding happens.
func WithThreshold(n int) Option {
	return func(c *Compactor) { c.threshold = n }
}

// WithFold sets how many turns are folded per compaction.
func WithFold(n int) Option {
	return func(c *Compactor) { c.fold = n }
}

// WithTimeout bounds every caption and summary call.
func WithTimeout(d time.Duration) Option {
	return func(c *Compactor) { c.timeout = d }
}

// NewCompactor creates a compactor with the default threshold and fold size.
func NewCompactor(captioner oracle.Captioner, summarizer oracle.Summarizer, opts ...Option) *Compactor {
	c := &Compactor{
		captioner:  captioner,
		summarizer: summarizer,
		threshold:  DefaultThreshold,
		fold:       DefaultFold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compactor) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Sanitize captions the images of the second-to-last turn. Called after the
// user's turn is appended, that is the previous agent reply and its gallery.
func (c *Compactor) Sanitize(ctx context.Context, s *session.Session) (bool, error) {
	if len(s.Turns) < 2 {
		return false, nil
	}
	t := &s.Turns[len(s.Turns)-2]
	if !t.HasImages() {
		return false, nil
	}

	callCtx, cancel := c.bounded(ctx)
	caption, err := c.captioner.Caption(callCtx, t.ImageRefs)
	cancel()
	if err != nil {
		return false, engine.External("caption", err)
	}
	t.Content = Captioned(t.Content, caption)
	t.ImageRefs = nil
	return true, nil
}

// Captioned renders a turn's text with its image caption appended.
func Captioned(text, caption string) string {
	return text + " [captioned: " + caption + "]"
}

// Compact sanitizes the session, then, if the history is above the threshold,
// folds the oldest turns into the summary once. A longer history shrinks by
// one fold per call. It is a no-op at or below the threshold once images are
// captioned.
func (c *Compactor) Compact(ctx context.Context, s *session.Session) (Report, error) {
	var rep Report
	captioned, err := c.Sanitize(ctx, s)
	if err != nil {
		return rep, err
	}
	rep.Captioned = captioned

	if len(s.Turns) > c.threshold {
		n := min(c.fold, len(s.Turns))
		callCtx, cancel := c.bounded(ctx)
		summary, err := c.summarizer.Summarize(callCtx, s.Summary, s.Turns[:n])
		cancel()
		if err != nil {
			return rep, engine.External("summarize", err)
		}
		s.Summary = summary
		s.Turns = append([]session.Turn(nil), s.Turns[n:]...)
		rep.Folded = n
	}
	rep.Turns = len(s.Turns)
	return rep, nil
}
