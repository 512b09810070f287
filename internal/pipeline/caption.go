package pipeline

import (
	"context"
	"os"
	"strings"

	"github.com/wapuda/autoshorts/internal/media"
)

// maxCaptionRunes is Telegram's media caption limit.
const maxCaptionRunes = 1024

// FileCaption re-reads the caption file on every call so it can be edited
// while the bot runs.
type FileCaption struct {
	Path string
}

func (f FileCaption) Caption() (string, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	return clampCaption(strings.TrimSpace(string(b))), nil
}

func clampCaption(s string) string {
	r := []rune(s)
	if len(r) <= maxCaptionRunes {
		return s
	}
	return string(r[:maxCaptionRunes])
}

// FileWatermark probes the watermark file at a fixed overlay height.
type FileWatermark struct {
	Path   string
	Height int
}

func (f FileWatermark) Load(ctx context.Context) (*media.WatermarkAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return media.LoadWatermark(f.Path, f.Height)
}
