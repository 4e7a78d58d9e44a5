package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"prism/core/events"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsLiveBuffer    = 64
	wsMaxReplay     = 256
	wsCursorParam   = "after"
	wsCloseShutdown = "stream closed"
)

// handleEventsWS streams journal entries over a websocket. Without a cursor
// the stream is live only; with ?after=<seq> up to wsMaxReplay persisted
// entries newer than the cursor are replayed first. Clients detect replay
// gaps by watching the sequence numbers.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.svc.Journal == nil {
		http.Error(w, "event journal not enabled", http.StatusServiceUnavailable)
		return
	}
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get(wsCursorParam)); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid after cursor", http.StatusBadRequest)
			return
		}
		after = parsed
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.log.Debug("websocket accept failed", "error", err.Error())
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, wsCloseShutdown)
	}()

	ctx := r.Context()
	live, cancel := s.svc.Journal.Subscribe(wsLiveBuffer)
	defer cancel()

	var lastSeq uint64
	if after > 0 {
		head, err := s.svc.Journal.Seq()
		if err != nil {
			return
		}
		if head > after {
			span := head - after
			if span > wsMaxReplay {
				span = wsMaxReplay
			}
			entries, err := s.svc.Journal.Recent(int(span))
			if err != nil {
				return
			}
			for _, entry := range entries {
				if entry.Sequence <= after {
					continue
				}
				if err := writeEvent(ctx, conn, entry); err != nil {
					return
				}
				lastSeq = entry.Sequence
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-live:
			if !ok {
				return
			}
			if entry.Sequence <= lastSeq {
				continue
			}
			if err := writeEvent(ctx, conn, entry); err != nil {
				return
			}
			lastSeq = entry.Sequence
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, entry events.Entry) error {
	data, err := json.Marshal(EventResult{
		Sequence:   entry.Sequence,
		EmittedAt:  entry.EmittedAt,
		Type:       entry.Type,
		Attributes: entry.Attributes,
	})
	if err != nil {
		return err
	}
	writeCtx, cancelWrite := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancelWrite()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
