package pipeline

import (
	"context"

	"github.com/wapuda/autoshorts/internal/jobs"
	"github.com/wapuda/autoshorts/internal/media"
)

// Gate answers whether a user may use the bot.
type Gate interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
}

// Messenger is the chat side of the bot.
type Messenger interface {
	SendUploading(ctx context.Context, chatID int64) error
	SendText(ctx context.Context, chatID int64, text string) (messageID int, err error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	SendVideo(ctx context.Context, chatID int64, path, caption string) error
	SendJoinPrompt(ctx context.Context, chatID int64) error
}

// Acquirer fetches the source behind url into dest.
type Acquirer interface {
	Acquire(ctx context.Context, url, dest string, sink media.ProgressSink) error
}

type Inspector interface {
	Inspect(ctx context.Context, path string) (jobs.SourceMedia, error)
}

type Encoder interface {
	Encode(ctx context.Context, c media.Composition, dest string) error
}

// WatermarkLoader is called once per pipeline run.
type WatermarkLoader interface {
	Load(ctx context.Context) (*media.WatermarkAsset, error)
}

type CaptionSource interface {
	Caption() (string, error)
}
