package controller

import (
	"context"
	"errors"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/ChamsBouzaiene/jewelbot/internal/diagnose"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/ChamsBouzaiene/jewelbot/internal/inference"
	"github.com/ChamsBouzaiene/jewelbot/internal/memory"
	"go.uber.org/zap"
)

// Hook observes a turn as it moves through the graph.
type Hook interface {
	OnTransition(ctx context.Context, sessionID string, from, to State)
	OnOutcome(ctx context.Context, sessionID string, out inference.Outcome)
	OnDiagnostics(ctx context.Context, sessionID string, f catalog.Filter, report diagnose.Report)
	OnCompaction(ctx context.Context, sessionID string, rep memory.Report)
	OnTurnError(ctx context.Context, sessionID string, err error)
}

// NopHook lets you implement only the hooks you need.
type NopHook struct{}

func (NopHook) OnTransition(context.Context, string, State, State)                     {}
func (NopHook) OnOutcome(context.Context, string, inference.Outcome)                   {}
func (NopHook) OnDiagnostics(context.Context, string, catalog.Filter, diagnose.Report) {}
func (NopHook) OnCompaction(context.Context, string, memory.Report)                    {}
func (NopHook) OnTurnError(context.Context, string, error)                             {}

// Hooks fans every event out to each hook in order.
type Hooks []Hook

func (hs Hooks) OnTransition(ctx context.Context, id string, from, to State) {
	for _, h := range hs {
		h.OnTransition(ctx, id, from, to)
	}
}
func (hs Hooks) OnOutcome(ctx context.Context, id string, out inference.Outcome) {
	for _, h := range hs {
		h.OnOutcome(ctx, id, out)
	}
}
func (hs Hooks) OnDiagnostics(ctx context.Context, id string, f catalog.Filter, r diagnose.Report) {
	for _, h := range hs {
		h.OnDiagnostics(ctx, id, f, r)
	}
}
func (hs Hooks) OnCompaction(ctx context.Context, id string, rep memory.Report) {
	for _, h := range hs {
		h.OnCompaction(ctx, id, rep)
	}
}
func (hs Hooks) OnTurnError(ctx context.Context, id string, err error) {
	for _, h := range hs {
		h.OnTurnError(ctx, id, err)
	}
}

// LoggerHook writes turn events to a zap logger.
type LoggerHook struct{ L *zap.Logger }

func (h LoggerHook) OnTransition(_ context.Context, id string, from, to State) {
	h.L.Debug("transition", zap.String("session_id", id), zap.String("from", string(from)), zap.String("state", string(to)))
}
func (h LoggerHook) OnOutcome(_ context.Context, id string, out inference.Outcome) {
	h.L.Info("inference outcome",
		zap.String("session_id", id),
		zap.String("attribute", out.Attribute),
		zap.String("status", out.Kind.String()),
		zap.Stringer("constraint", out.Constraint),
		zap.String("reasoning", out.Reasoning))
}
func (h LoggerHook) OnDiagnostics(_ context.Context, id string, f catalog.Filter, r diagnose.Report) {
	h.L.Info("🔎 diagnostics", zap.String("session_id", id), zap.Stringer("filter", f), zap.Any("relaxed_counts", r))
}
func (h LoggerHook) OnCompaction(_ context.Context, id string, rep memory.Report) {
	if !rep.Changed() {
		return
	}
	h.L.Info("🗜️  memory compacted",
		zap.String("session_id", id),
		zap.Bool("captioned", rep.Captioned),
		zap.Int("folded", rep.Folded),
		zap.Int("turns", rep.Turns))
}
func (h LoggerHook) OnTurnError(_ context.Context, id string, err error) {
	var inv *engine.InvariantViolation
	if errors.As(err, &inv) {
		h.L.Error("invariant violation",
			zap.String("session_id", id),
			zap.Error(err),
			zap.ByteString("stack", inv.Stack))
		return
	}
	h.L.Warn("turn failed", zap.String("session_id", id), zap.Error(err))
}
