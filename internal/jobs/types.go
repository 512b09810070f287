package jobs

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Request is one inbound link from a chat. It is owned by the pipeline run
// that serves it.
type Request struct {
	ID          string    `json:"id"` // ULID, also names the work directory
	ChatID      int64     `json:"chat_id"`
	UserID      int64     `json:"user_id"`
	URL         string    `json:"url"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SourceMedia is the acquired file plus what the inspector learned about it.
type SourceMedia struct {
	Path     string     `json:"path"`
	Duration int        `json:"duration_s"` // whole seconds, truncated
	Base     Resolution `json:"base"`
}

// SegmentSpec is one slice [Start, End) of the source, in seconds.
type SegmentSpec struct {
	Index int `json:"index"`
	Start int `json:"start_s"`
	End   int `json:"end_s"`
}

func (s SegmentSpec) Duration() int { return s.End - s.Start }

// SegmentPlan is ordered by Index, starting at 0 with no gaps.
type SegmentPlan []SegmentSpec

// RenderedSegment is an encoded short waiting for delivery.
type RenderedSegment struct {
	Path  string `json:"path"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newULID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// NewRequest stamps a request with a fresh ULID and the current time.
func NewRequest(chatID, userID int64, url string) Request {
	now := time.Now()
	return Request{
		ID:          newULID(now),
		ChatID:      chatID,
		UserID:      userID,
		URL:         url,
		SubmittedAt: now,
	}
}
