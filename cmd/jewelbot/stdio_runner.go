package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ChamsBouzaiene/jewelbot/internal/engine/protocol"
	"github.com/ChamsBouzaiene/jewelbot/internal/server"
	"go.uber.org/zap"
)

// stdioRunner speaks the NDJSON protocol on a reader/writer pair: one command
// per input line, one event per output line.
type stdioRunner struct {
	scanner    *bufio.Scanner
	writer     *bufio.Writer
	events     chan protocol.Event
	dispatcher *server.Dispatcher
	logger     *zap.Logger
}

func newStdIORunner(in io.Reader, out io.Writer, dispatcher *server.Dispatcher, logger *zap.Logger) *stdioRunner {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	if logger == nil {
		logger = zap.NewNop()
	}
	return &stdioRunner{
		scanner:    scanner,
		writer:     bufio.NewWriter(out),
		events:     make(chan protocol.Event, 256),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run reads commands until EOF or ctx is done, then waits for in-flight
// commands and flushes every pending event.
func (r *stdioRunner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go r.flushEvents(errCh)

	r.emitEvent(protocol.NewStatusEvent("", "engine_ready", "stdio protocol ready"))

	lines := make(chan string)
	scanDone := make(chan error, 1)
	go func() {
		defer close(lines)
		for r.scanner.Scan() {
			select {
			case lines <- r.scanner.Text():
			case <-ctx.Done():
				scanDone <- nil
				return
			}
		}
		scanDone <- r.scanner.Err()
	}()

	var wg sync.WaitGroup
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			// Commands run concurrently so cancel_request can reach a running turn.
			wg.Add(1)
			go func(l string) {
				defer wg.Done()
				r.dispatcher.HandleLine(ctx, []byte(l), r.emitEvent)
			}(line)
		}
	}

	select {
	case err := <-scanDone:
		if err != nil && !errors.Is(err, io.EOF) {
			r.logger.Warn("stdin read failed", zap.Error(err))
			r.emitEvent(protocol.NewErrorEvent("", fmt.Sprintf("stdin error: %v", err), protocol.CodeProtocol, ""))
		}
	default:
	}

	wg.Wait()
	close(r.events)
	return <-errCh
}

func (r *stdioRunner) flushEvents(errCh chan<- error) {
	for ev := range r.events {
		if err := r.writeEvent(ev); err != nil {
			// Keep draining so emitters never block.
			for range r.events {
			}
			errCh <- err
			return
		}
	}
	errCh <- r.writer.Flush()
}

func (r *stdioRunner) writeEvent(ev protocol.Event) error {
	payload, err := protocol.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := r.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return r.writer.Flush()
}

func (r *stdioRunner) emitEvent(ev protocol.Event) {
	r.events <- ev
}
