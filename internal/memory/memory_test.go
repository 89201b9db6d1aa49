package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type mockCaptioner struct {
	caption string
	err     error
	calls   [][]string
}

func (m *mockCaptioner) Caption(ctx context.Context, images []string) (string, error) {
	m.calls = append(m.calls, images)
	return m.caption, m.err
}

type mockSummarizer struct {
	err   error
	calls int
	seen  []session.Turn
}

func (m *mockSummarizer) Summarize(ctx context.Context, summary string, turns []session.Turn) (string, error) {
	m.calls++
	m.seen = turns
	if m.err != nil {
		return "", m.err
	}
	var parts []string
	if summary != "" {
		parts = append(parts, summary)
	}
	for _, t := range turns {
		parts = append(parts, t.Content)
	}
	return strings.Join(parts, " / "), nil
}

func sessionWithTurns(n int) *session.Session {
	s := session.New("s1")
	for i := 0; i < n; i++ {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAgent
		}
		s.Append(session.NewTurn(role, fmt.Sprintf("turn %d", i+1), nil))
	}
	return s
}

func TestCompactFoldsOldestTurns(t *testing.T) {
	sum := &mockSummarizer{}
	c := NewCompactor(&mockCaptioner{}, sum)
	s := sessionWithTurns(7)
	s.Summary = "earlier"
	keep := s.Turns[2].ID

	rep, err := c.Compact(context.Background(), s)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if rep.Folded != 2 || rep.Turns != 5 || len(s.Turns) != 5 {
		t.Fatalf("Compact() report = %+v, turns = %d", rep, len(s.Turns))
	}
	if s.Turns[0].ID != keep {
		t.Errorf("oldest kept turn = %q, want %q", s.Turns[0].ID, keep)
	}
	if s.Summary != "earlier / turn 1 / turn 2" {
		t.Errorf("Summary = %q", s.Summary)
	}
}

func TestCompactFoldsOncePerCall(t *testing.T) {
	sum := &mockSummarizer{}
	c := NewCompactor(&mockCaptioner{}, sum)
	s := sessionWithTurns(9)

	rep, err := c.Compact(context.Background(), s)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if rep.Folded != 2 || len(s.Turns) != 7 || sum.calls != 1 {
		t.Fatalf("first Compact() report = %+v, turns = %d, summaries = %d", rep, len(s.Turns), sum.calls)
	}

	if _, err := c.Compact(context.Background(), s); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if len(s.Turns) != 5 || sum.calls != 2 {
		t.Errorf("second Compact() left %d turns after %d summaries", len(s.Turns), sum.calls)
	}
}

func TestCompactIdempotentBelowThreshold(t *testing.T) {
	for _, n := range []int{0, 1, 5, 6} {
		t.Run(fmt.Sprintf("%d turns", n), func(t *testing.T) {
			sum := &mockSummarizer{}
			c := NewCompactor(&mockCaptioner{}, sum)
			s := sessionWithTurns(n)
			before := s.Clone()

			for i := 0; i < 2; i++ {
				rep, err := c.Compact(context.Background(), s)
				if err != nil {
					t.Fatalf("Compact() error = %v", err)
				}
				if rep.Changed() {
					t.Errorf("Compact() changed an unchanged session: %+v", rep)
				}
			}
			if sum.calls != 0 {
				t.Errorf("summarizer called %d times", sum.calls)
			}
			if diff := cmp.Diff(before, s, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("session mutated (-before +after):\n%s", diff)
			}
		})
	}
}

func TestSanitizeCaptionsPreviousReply(t *testing.T) {
	capt := &mockCaptioner{caption: "three halo rings"}
	c := NewCompactor(capt, &mockSummarizer{})

	s := session.New("s1")
	s.Append(session.NewTurn(session.RoleUser, "show me rings", nil))
	s.Append(session.NewTurn(session.RoleAgent, "Which style?", []string{"http://img/1.jpg", "http://img/2.jpg"}))
	s.Append(session.NewTurn(session.RoleUser, "the first one", []string{"http://img/upload.jpg"}))

	changed, err := c.Sanitize(context.Background(), s)
	if err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}
	if !changed {
		t.Fatal("Sanitize() reported no change")
	}
	agent := s.Turns[1]
	if agent.Content != "Which style? [captioned: three halo rings]" || agent.HasImages() {
		t.Errorf("agent turn = %+v", agent)
	}
	if !s.Turns[2].HasImages() {
		t.Error("the latest user turn must keep its images")
	}
	if diff := cmp.Diff([][]string{{"http://img/1.jpg", "http://img/2.jpg"}}, capt.calls); diff != "" {
		t.Errorf("caption calls mismatch (-want +got):\n%s", diff)
	}

	// A second pass has nothing left to caption.
	changed, err = c.Sanitize(context.Background(), s)
	if err != nil || changed {
		t.Errorf("second Sanitize() = %v, %v", changed, err)
	}
}

func TestCompactErrorsAreExternal(t *testing.T) {
	t.Run("caption", func(t *testing.T) {
		c := NewCompactor(&mockCaptioner{err: errors.New("vision model down")}, &mockSummarizer{})
		s := session.New("s1")
		s.Append(session.NewTurn(session.RoleAgent, "gallery", []string{"http://img/1.jpg"}))
		s.Append(session.NewTurn(session.RoleUser, "hmm", nil))

		_, err := c.Compact(context.Background(), s)
		var ext *engine.ExternalServiceError
		if !errors.As(err, &ext) || ext.Op != "caption" {
			t.Fatalf("expected caption external error, got %v", err)
		}
	})

	t.Run("summarize", func(t *testing.T) {
		c := NewCompactor(&mockCaptioner{}, &mockSummarizer{err: errors.New("timeout")}, WithThreshold(2))
		s := sessionWithTurns(3)

		_, err := c.Compact(context.Background(), s)
		var ext *engine.ExternalServiceError
		if !errors.As(err, &ext) || ext.Op != "summarize" {
			t.Fatalf("expected summarize external error, got %v", err)
		}
		if len(s.Turns) != 3 {
			t.Errorf("turns removed despite failure: %d", len(s.Turns))
		}
	})
}

func TestCompactOptions(t *testing.T) {
	sum := &mockSummarizer{}
	c := NewCompactor(&mockCaptioner{}, sum, WithThreshold(3), WithFold(3))
	s := sessionWithTurns(4)

	rep, err := c.Compact(context.Background(), s)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if rep.Folded != 3 || len(s.Turns) != 1 || len(sum.seen) != 3 {
		t.Errorf("Compact() = %+v, turns = %d", rep, len(s.Turns))
	}
}
