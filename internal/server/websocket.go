package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/ChamsBouzaiene/jewelbot/internal/engine/protocol"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// wsEventBuffer is the number of events queued per connection before
// producers block.
const wsEventBuffer = 64

// handleWebSocket speaks the NDJSON protocol over a WebSocket: each text
// message is one command, each event is written as one JSON message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("failed to accept websocket", zap.Error(err))
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "bye"); closeErr != nil {
			s.logger.Debug("failed to close websocket", zap.Error(closeErr))
		}
	}()
	ws.SetReadLimit(s.maxBody)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan protocol.Event, wsEventBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range events {
			if err := wsjson.Write(ctx, ws, ev); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				cancel()
				// Drain so producers never block on a dead connection.
				for range events {
				}
				return
			}
		}
	}()

	emit := func(ev protocol.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		close(events)
		<-writerDone
	}()

	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				s.logger.Debug("websocket closed by client")
			} else if ctx.Err() == nil {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		wg.Add(1)
		go func(line []byte) {
			defer wg.Done()
			s.dispatcher.HandleLine(ctx, line, emit)
		}(message)
	}
}
