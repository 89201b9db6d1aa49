// Package protocol defines the NDJSON messages exchanged with the engine over
// stdio and WebSocket: one JSON command or event per line.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CommandType enumerates all supported client -> engine commands.
type CommandType string

const (
	CommandUserMessage   CommandType = "user_message"
	CommandResetSession  CommandType = "reset_session"
	CommandCancelRequest CommandType = "cancel_request"
)

// Command is a marker interface implemented by all protocol commands.
type Command interface {
	GetType() CommandType
}

// UserMessageCommand sends one user message to a session.
type UserMessageCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
	Images    []string    `json:"images,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// GetType implements Command.
func (c UserMessageCommand) GetType() CommandType { return CommandUserMessage }

// ResetSessionCommand forgets a session.
type ResetSessionCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`
}

// GetType implements Command.
func (c ResetSessionCommand) GetType() CommandType { return CommandResetSession }

// CancelRequestCommand cancels the in-flight turn of a session.
type CancelRequestCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`
}

// GetType implements Command.
func (c CancelRequestCommand) GetType() CommandType { return CommandCancelRequest }

type rawCommand struct {
	Type CommandType `json:"type"`
}

// DecodeCommand converts raw JSON into a strongly typed command.
func DecodeCommand(data []byte) (Command, error) {
	var base rawCommand
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch base.Type {
	case CommandUserMessage:
		var cmd UserMessageCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode user_message: %w", err)
		}
		if cmd.SessionID == "" {
			return nil, errors.New("user_message requires session_id")
		}
		if cmd.Message == "" && len(cmd.Images) == 0 {
			return nil, errors.New("user_message requires message or images")
		}
		return cmd, nil
	case CommandResetSession:
		var cmd ResetSessionCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode reset_session: %w", err)
		}
		if cmd.SessionID == "" {
			return nil, errors.New("reset_session requires session_id")
		}
		return cmd, nil
	case CommandCancelRequest:
		var cmd CancelRequestCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode cancel_request: %w", err)
		}
		if cmd.SessionID == "" {
			return nil, errors.New("cancel_request requires session_id")
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("unknown command type: %s", base.Type)
	}
}

// NewSessionID generates a new opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// EventType enumerates engine -> client events.
type EventType string

const (
	EventStatus EventType = "status"
	EventReply  EventType = "reply"
	EventError  EventType = "error"
)

// Error codes carried by ErrorEvent.
const (
	CodeBadRequest = "bad_request"
	CodeExternal   = "external_service"
	CodeInternal   = "internal"
	CodeCancelled  = "cancelled"
	CodeProtocol   = "protocol_error"
	CodeRateLimit  = "rate_limited"
)

// Event is implemented by every outgoing message.
type Event interface {
	isEvent()
	GetType() EventType
}

// MarshalEvent serializes an event into JSON for NDJSON transport.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

type eventBase struct {
	Type      EventType `json:"type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
}

func newBase(t EventType, sessionID string) eventBase {
	return eventBase{
		Type:      t,
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
	}
}

func (eventBase) isEvent() {}

// GetType implements Event.
func (b eventBase) GetType() EventType { return b.Type }

// StatusEvent communicates coarse engine state.
type StatusEvent struct {
	eventBase
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// NewStatusEvent constructs a status event.
func NewStatusEvent(sessionID, status, detail string) StatusEvent {
	return StatusEvent{
		eventBase: newBase(EventStatus, sessionID),
		Status:    status,
		Detail:    detail,
	}
}

// ReplyEvent carries the agent's answer to a user_message.
type ReplyEvent struct {
	eventBase
	RequestID string   `json:"request_id,omitempty"`
	Text      string   `json:"text"`
	Images    []string `json:"images"`
}

// NewReplyEvent constructs a reply event.
func NewReplyEvent(sessionID, requestID, text string, images []string) ReplyEvent {
	if images == nil {
		images = []string{}
	}
	return ReplyEvent{
		eventBase: newBase(EventReply, sessionID),
		RequestID: requestID,
		Text:      text,
		Images:    images,
	}
}

// ErrorEvent reports a failed command.
type ErrorEvent struct {
	eventBase
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// NewErrorEvent constructs an error event.
func NewErrorEvent(sessionID, message, code, requestID string) ErrorEvent {
	return ErrorEvent{
		eventBase: newBase(EventError, sessionID),
		Message:   message,
		Code:      code,
		RequestID: requestID,
	}
}
