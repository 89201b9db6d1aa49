package server

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/ChamsBouzaiene/jewelbot/internal/controller"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine/protocol"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
	"go.uber.org/zap"
)

// Turner is the part of the controller the transports drive.
type Turner interface {
	RunTurn(ctx context.Context, sessionID string, in controller.Input) (controller.Reply, error)
	Reset(ctx context.Context, sessionID string) error
	Session(ctx context.Context, sessionID string) (*session.Session, error)
}

// Emit delivers one event to the client of a transport.
type Emit func(protocol.Event)

// Dispatcher executes NDJSON protocol commands against a Turner. It is shared
// by the WebSocket handler and the stdio runner.
type Dispatcher struct {
	turns   Turner
	limiter *RateLimiter
	logger  *zap.Logger

	mu       sync.Mutex
	nextID   uint64
	inflight map[string]map[uint64]context.CancelFunc
}

// NewDispatcher creates a dispatcher. limiter may be nil.
func NewDispatcher(turns Turner, limiter *RateLimiter, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		turns:    turns,
		limiter:  limiter,
		logger:   logger,
		inflight: make(map[string]map[uint64]context.CancelFunc),
	}
}

// HandleLine decodes one raw command and dispatches it. Decode failures are
// reported as protocol_error events.
func (d *Dispatcher) HandleLine(ctx context.Context, line []byte, emit Emit) {
	cmd, err := protocol.DecodeCommand(line)
	if err != nil {
		emit(protocol.NewErrorEvent("", err.Error(), protocol.CodeProtocol, ""))
		return
	}
	d.Dispatch(ctx, cmd, emit)
}

// Dispatch runs one command to completion. A user_message blocks until its
// turn finishes or is cancelled, so transports call it from a goroutine when
// they need to keep reading.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd protocol.Command, emit Emit) {
	switch c := cmd.(type) {
	case protocol.UserMessageCommand:
		d.userMessage(ctx, c, emit)
	case protocol.ResetSessionCommand:
		if err := d.turns.Reset(ctx, c.SessionID); err != nil {
			emit(protocol.NewErrorEvent(c.SessionID, err.Error(), ErrorCode(err), ""))
			return
		}
		emit(protocol.NewStatusEvent(c.SessionID, "reset", ""))
	case protocol.CancelRequestCommand:
		n := d.Cancel(c.SessionID)
		emit(protocol.NewStatusEvent(c.SessionID, "cancelled", pluralTurns(n)))
	default:
		emit(protocol.NewErrorEvent("", "unsupported command", protocol.CodeProtocol, ""))
	}
}

func (d *Dispatcher) userMessage(ctx context.Context, c protocol.UserMessageCommand, emit Emit) {
	if !d.limiter.Allow(c.SessionID) {
		emit(protocol.NewErrorEvent(c.SessionID, "rate limit exceeded", protocol.CodeRateLimit, c.RequestID))
		return
	}

	ctx, done := d.track(ctx, c.SessionID)
	defer done()

	emit(protocol.NewStatusEvent(c.SessionID, "thinking", ""))
	reply, err := d.turns.RunTurn(ctx, c.SessionID, controller.Input{Text: c.Message, Images: c.Images})
	if err != nil {
		d.logger.Debug("turn failed", zap.String("session_id", c.SessionID), zap.Error(err))
		emit(protocol.NewErrorEvent(c.SessionID, ClientMessage(err), ErrorCode(err), c.RequestID))
		return
	}
	emit(protocol.NewReplyEvent(c.SessionID, c.RequestID, reply.Text, reply.Images))
}

// track registers a cancellable context for an in-flight turn.
func (d *Dispatcher) track(parent context.Context, sessionID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	if d.inflight[sessionID] == nil {
		d.inflight[sessionID] = make(map[uint64]context.CancelFunc)
	}
	d.inflight[sessionID][id] = cancel
	d.mu.Unlock()

	return ctx, func() {
		cancel()
		d.mu.Lock()
		delete(d.inflight[sessionID], id)
		if len(d.inflight[sessionID]) == 0 {
			delete(d.inflight, sessionID)
		}
		d.mu.Unlock()
	}
}

// Cancel aborts every in-flight turn of a session and returns how many were
// cancelled.
func (d *Dispatcher) Cancel(sessionID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	turns := d.inflight[sessionID]
	for _, cancel := range turns {
		cancel()
	}
	return len(turns)
}

// InFlight reports the number of running turns across all sessions.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, turns := range d.inflight {
		n += len(turns)
	}
	return n
}

// ErrorCode maps a turn error to a protocol error code.
func ErrorCode(err error) string {
	switch {
	case isBadInput(err):
		return protocol.CodeBadRequest
	case errors.Is(err, context.Canceled):
		return protocol.CodeCancelled
	case engine.IsExternal(err), errors.Is(err, context.DeadlineExceeded):
		return protocol.CodeExternal
	default:
		return protocol.CodeInternal
	}
}

// ClientMessage is the text shown to a user for a failed turn. External
// failures never leak provider details.
func ClientMessage(err error) string {
	switch ErrorCode(err) {
	case protocol.CodeBadRequest:
		return err.Error()
	case protocol.CodeCancelled:
		return "request cancelled"
	default:
		return controller.RetryText
	}
}

func isBadInput(err error) bool {
	return errors.Is(err, controller.ErrEmptyMessage) || errors.Is(err, controller.ErrMissingSession)
}

func pluralTurns(n int) string {
	if n == 1 {
		return "1 turn"
	}
	return strconv.Itoa(n) + " turns"
}
