package protocol

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
)

// RecvLoop reads frames from r until the connection closes, handing every
// decoded message to handle in arrival order. A segment that fails to decode
// or exceeds MaxFrameSize is logged and dropped. onClose is called exactly
// once when reading stops.
func RecvLoop(r io.Reader, handle func(json.RawMessage), onClose func(), logger *slog.Logger) {
	defer onClose()

	var splitter Splitter
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			dropped := splitter.Dropped()
			segs := splitter.Feed(buf[:n])
			if d := splitter.Dropped() - dropped; d > 0 {
				logger.Warn("dropping oversized frame", "count", d, "limit", MaxFrameSize)
			}
			for _, seg := range segs {
				msg, derr := Decode(seg)
				if derr != nil {
					logger.Warn("dropping malformed frame", "error", derr, "size", len(seg))
					continue
				}
				if logger.Enabled(context.Background(), slog.LevelDebug) {
					logger.Debug("received message", "msg", truncate(msg, 150))
				}
				handle(msg)
			}
		}
		if err != nil {
			if IsClosed(err) {
				logger.Debug("connection closed by peer")
			} else {
				logger.Error("error reading from connection", "error", err)
			}
			return
		}
	}
}

// SendLoop writes what next yields until next reports the source is
// exhausted or a write fails.
func SendLoop[T any](c *Conn, next func() (T, bool), logger *slog.Logger) {
	for {
		msg, ok := next()
		if !ok {
			return
		}
		if err := c.Send(msg); err != nil {
			if IsClosed(err) {
				logger.Debug("send loop stopping, connection closed")
			} else {
				logger.Error("error writing to connection", "error", err)
			}
			return
		}
	}
}

func truncate(msg json.RawMessage, n int) string {
	if len(msg) <= n {
		return string(msg)
	}
	return string(msg[:n]) + "..."
}
