package serialmux

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/armguard/internal/monitoring"
)

// ReplyRecorder stores firmware reply lines.
type ReplyRecorder interface {
	RecordLinkResponse(line string) error
}

// HandleReply logs a single firmware reply line and stores it verbatim.
// Blank lines are dropped.
func HandleReply(rec ReplyRecorder, line string) error {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return nil
	}
	monitoring.Logf("arm reply: %s", line)
	if rec == nil {
		return nil
	}
	if err := rec.RecordLinkResponse(line); err != nil {
		return fmt.Errorf("failed to record link response: %w", err)
	}
	return nil
}

// RecordReplies subscribes to mux and passes every line to HandleReply until
// ctx is done or the mux closes the subscription.
func RecordReplies(ctx context.Context, mux SerialMuxInterface, rec ReplyRecorder) {
	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			if err := HandleReply(rec, line); err != nil {
				monitoring.Logf("error handling reply: %v", err)
			}
		}
	}
}
