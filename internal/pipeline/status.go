package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// status is the single progress message a request keeps editing. Every
// call is best-effort: platform errors are logged and swallowed.
type status struct {
	msg    Messenger
	chatID int64
	id     int
	text   string
	log    zerolog.Logger
}

func newStatus(ctx context.Context, msg Messenger, chatID int64, text string, log zerolog.Logger) *status {
	s := &status{msg: msg, chatID: chatID, log: log}
	s.set(ctx, text)
	return s
}

func (s *status) set(ctx context.Context, text string) {
	if text == s.text {
		return
	}
	s.text = text
	if s.id == 0 {
		id, err := s.msg.SendText(ctx, s.chatID, text)
		if err != nil {
			s.log.Debug().Err(err).Msg("status send failed")
			return
		}
		s.id = id
		return
	}
	if err := s.msg.EditText(ctx, s.chatID, s.id, text); err != nil {
		s.log.Debug().Err(err).Msg("status edit failed")
	}
}

// downloadSink surfaces acquirer progress in 10-point steps.
func (s *status) downloadSink(ctx context.Context) func(int) {
	shown := -1
	return func(pct int) {
		step := pct / 10 * 10
		if step <= shown {
			return
		}
		shown = step
		s.set(ctx, fmt.Sprintf(textDownloading, step))
	}
}
