package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Command
		wantErr string
	}{
		{
			name:  "user message",
			input: `{"type":"user_message","session_id":"s1","message":"halo rings","request_id":"r1"}`,
			want:  UserMessageCommand{Type: CommandUserMessage, SessionID: "s1", Message: "halo rings", RequestID: "r1"},
		},
		{
			name:  "image only message",
			input: `{"type":"user_message","session_id":"s1","images":["data:image/png;base64,AAAA"]}`,
			want:  UserMessageCommand{Type: CommandUserMessage, SessionID: "s1", Images: []string{"data:image/png;base64,AAAA"}},
		},
		{
			name:  "reset",
			input: `{"type":"reset_session","session_id":"s1"}`,
			want:  ResetSessionCommand{Type: CommandResetSession, SessionID: "s1"},
		},
		{
			name:  "cancel",
			input: `{"type":"cancel_request","session_id":"s1"}`,
			want:  CancelRequestCommand{Type: CommandCancelRequest, SessionID: "s1"},
		},
		{name: "missing session", input: `{"type":"user_message","message":"hi"}`, wantErr: "requires session_id"},
		{name: "empty message", input: `{"type":"user_message","session_id":"s1"}`, wantErr: "requires message or images"},
		{name: "cancel without session", input: `{"type":"cancel_request"}`, wantErr: "requires session_id"},
		{name: "unknown type", input: `{"type":"start_session"}`, wantErr: "unknown command type"},
		{name: "not json", input: `hello`, wantErr: "decode command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("DecodeCommand() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeCommand() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeCommand() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEventsCarryIDAndTimestamp(t *testing.T) {
	events := []Event{
		NewStatusEvent("s1", "thinking", ""),
		NewReplyEvent("s1", "r1", "Which style?", nil),
		NewErrorEvent("s1", "boom", CodeInternal, "r1"),
	}
	seen := map[string]bool{}
	for _, ev := range events {
		data, err := MarshalEvent(ev)
		if err != nil {
			t.Fatalf("MarshalEvent() error = %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON %s: %v", data, err)
		}
		id, _ := decoded["event_id"].(string)
		if id == "" || seen[id] {
			t.Errorf("event %s has missing or duplicate event_id", data)
		}
		seen[id] = true
		if _, ok := decoded["timestamp"].(string); !ok {
			t.Errorf("event %s has no timestamp", data)
		}
		if decoded["type"] != string(ev.GetType()) {
			t.Errorf("type = %v, want %s", decoded["type"], ev.GetType())
		}
	}

	data, _ := MarshalEvent(NewReplyEvent("s1", "", "hi", nil))
	if !strings.Contains(string(data), `"images":[]`) {
		t.Errorf("reply images should encode as an empty array: %s", data)
	}
}
