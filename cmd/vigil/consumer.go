package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vorth-network/vigil/screener/engine"
)

// 1 MiB; join events are small
const maxJoinEventLine = 1 << 20

// Opens the join event stream: "-" for stdin, otherwise a file path.
func openJoinEvents(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening join events: %w", err)
	}
	return f, nil
}

// Screens join events read as JSON lines until the stream ends or ctx is cancelled. Bad lines are logged and skipped.
func RunJoinConsumer(ctx context.Context, r io.Reader, eng *engine.Engine, logger *slog.Logger) error {
	logger = logger.With("component", "consumer")
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJoinEventLine)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		joinEventsReceived.Inc()

		var evt engine.JoinEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			joinEventsFailed.Inc()
			logger.Error("bad join event", "line", line, "err", err)
			continue
		}
		evtCtx, span := tracer.Start(ctx, "ConsumeJoinEvent")
		out, err := eng.ProcessJoin(evtCtx, evt)
		span.End()
		if err != nil {
			joinEventsFailed.Inc()
			logger.Error("processing join event failed", "line", line, "server", evt.ServerID, "member", evt.MemberID, "err", err)
			continue
		}
		if out == nil {
			continue
		}
		if out.Matched {
			// the chat gateway delivers the summary to the notification channel
			logger.Info("join outcome", "server", out.ServerID, "member", out.MemberID, "summary", out.Summary, "channel", out.NotificationChannel)
		} else {
			logger.Debug("join outcome", "server", out.ServerID, "member", out.MemberID, "summary", out.Summary)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading join events: %w", err)
	}
	logger.Info("join event stream ended", "lines", line)
	return nil
}
