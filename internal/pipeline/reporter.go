package pipeline

import (
	"context"
	"fmt"

	"github.com/wapuda/autoshorts/internal/jobs"
	logx "github.com/wapuda/autoshorts/internal/logs"
)

// Reporter delivers rendered shorts to one chat in plan order.
type Reporter struct {
	msg      Messenger
	captions CaptionSource
	chatID   int64
	next     int
	broken   bool
}

func NewReporter(msg Messenger, captions CaptionSource, chatID int64) *Reporter {
	return &Reporter{msg: msg, captions: captions, chatID: chatID}
}

// Delivered is the number of shorts sent so far.
func (r *Reporter) Delivered() int { return r.next }

// Deliver shows the "uploading" indicator and sends seg with the current
// caption. Indices must arrive as 0, 1, 2, ...; once a send fails the
// reporter refuses everything after it.
func (r *Reporter) Deliver(ctx context.Context, seg jobs.RenderedSegment) error {
	if r.broken {
		return fmt.Errorf("short %d not sent: an earlier short failed", seg.Index)
	}
	if seg.Index != r.next {
		return fmt.Errorf("short %d out of order, expected %d", seg.Index, r.next)
	}
	log := logx.FromCtx(ctx)

	if err := r.msg.SendUploading(ctx, r.chatID); err != nil {
		log.Debug().Err(err).Msg("chat action failed")
	}

	caption, err := r.captions.Caption()
	if err != nil {
		log.Warn().Err(err).Msg("caption unavailable, sending without")
		caption = ""
	}

	if err := r.msg.SendVideo(ctx, r.chatID, seg.Path, caption); err != nil {
		r.broken = true
		return fmt.Errorf("send short %d: %w", seg.Index, err)
	}
	r.next++
	log.Info().Int("segment", seg.Index).Int("total", seg.Total).Msg("short delivered")
	return nil
}
