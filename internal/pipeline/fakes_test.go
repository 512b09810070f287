package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wapuda/autoshorts/internal/config"
	"github.com/wapuda/autoshorts/internal/jobs"
	"github.com/wapuda/autoshorts/internal/media"
)

const testURL = "https://youtu.be/dQw4w9WgXcQ"

type fakeGate struct {
	member bool
	err    error
}

func (g fakeGate) IsMember(context.Context, int64) (bool, error) { return g.member, g.err }

type fakeMessenger struct {
	mu        sync.Mutex
	events    []string
	videos    map[int64][]string
	nextID    int
	failVideo map[int]error // by call number, 0-based
	failChat  error
	calls     int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{videos: make(map[int64][]string)}
}

func (m *fakeMessenger) record(ev string) {
	m.events = append(m.events, ev)
}

func (m *fakeMessenger) SendUploading(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("uploading")
	return m.failChat
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("text:" + text)
	m.nextID++
	return m.nextID, nil
}

func (m *fakeMessenger) EditText(_ context.Context, chatID int64, id int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("edit:" + text)
	return nil
}

func (m *fakeMessenger) SendVideo(_ context.Context, chatID int64, path, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.calls
	m.calls++
	if err := m.failVideo[n]; err != nil {
		m.record("video-failed:" + filepath.Base(path))
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("fake: rendered file missing: %w", err)
	}
	m.record("video:" + filepath.Base(path) + ":" + caption)
	m.videos[chatID] = append(m.videos[chatID], filepath.Base(path))
	return nil
}

func (m *fakeMessenger) SendJoinPrompt(context.Context, int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("join")
	return nil
}

func (m *fakeMessenger) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *fakeMessenger) last() string {
	ev := m.Events()
	return ev[len(ev)-1]
}

type fakeAcquirer struct {
	mu      sync.Mutex
	calls   int
	err     error
	partial bool
}

func (a *fakeAcquirer) Acquire(ctx context.Context, url, dest string, sink media.ProgressSink) error {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.partial {
		_ = os.WriteFile(dest, []byte("half"), 0o644)
	}
	if a.err != nil {
		return a.err
	}
	for _, p := range []int{5, 37, 100} {
		sink.Progress(p)
	}
	return os.WriteFile(dest, []byte("source"), 0o644)
}

func (a *fakeAcquirer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fakeInspector struct {
	duration int
	err      error
}

func (i fakeInspector) Inspect(_ context.Context, path string) (jobs.SourceMedia, error) {
	if i.err != nil {
		return jobs.SourceMedia{}, i.err
	}
	return jobs.SourceMedia{Path: path, Duration: i.duration, Base: jobs.Resolution{Width: 1920, Height: 1080}}, nil
}

type fakeEncoder struct {
	mu      sync.Mutex
	encoded []media.Composition
	failAt  map[int]error
	panicAt int
	onEnc   func(ctx context.Context, c media.Composition)
}

func (e *fakeEncoder) Encode(ctx context.Context, c media.Composition, dest string) error {
	if e.onEnc != nil {
		e.onEnc(ctx, c)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(c.Source); err != nil {
		return fmt.Errorf("fake: source gone before encode: %w", err)
	}
	if e.panicAt > 0 && c.Index == e.panicAt {
		panic("encoder exploded")
	}
	e.mu.Lock()
	e.encoded = append(e.encoded, c)
	err := e.failAt[c.Index]
	e.mu.Unlock()
	if err != nil {
		_ = os.WriteFile(dest+".part", []byte("partial"), 0o644)
		return err
	}
	return os.WriteFile(dest, []byte(fmt.Sprintf("short %d", c.Index)), 0o644)
}

func (e *fakeEncoder) Encoded() []media.Composition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]media.Composition(nil), e.encoded...)
}

type fakeWatermark struct{ err error }

func (w fakeWatermark) Load(context.Context) (*media.WatermarkAsset, error) {
	if w.err != nil {
		return nil, w.err
	}
	return &media.WatermarkAsset{Path: "wm.mp4", Width: 178, Height: 100}, nil
}

type staticCaption string

func (c staticCaption) Caption() (string, error) { return string(c), nil }

type harness struct {
	cfg  *config.Config
	gate *fakeGate
	msg  *fakeMessenger
	acq  *fakeAcquirer
	insp *fakeInspector
	enc  *fakeEncoder
	wm   *fakeWatermark
	orch *Orchestrator
}

func newHarness(t *testing.T, duration int) *harness {
	t.Helper()
	h := &harness{
		cfg: &config.Config{
			DataDir:               t.TempDir(),
			ShortDuration:         60,
			TargetWidth:           720,
			TargetHeight:          1280,
			WatermarkBottomOffset: 200,
		},
		gate: &fakeGate{member: true},
		msg:  newFakeMessenger(),
		acq:  &fakeAcquirer{},
		insp: &fakeInspector{duration: duration},
		enc:  &fakeEncoder{},
		wm:   &fakeWatermark{},
	}
	h.orch = New(h.cfg, Deps{
		Gate:      h.gate,
		Messenger: h.msg,
		Acquirer:  h.acq,
		Inspector: h.insp,
		Watermark: h.wm,
		Encoder:   h.enc,
		Captions:  staticCaption("Follow @AutoShortYouTubeID"),
	})
	return h
}

func (h *harness) request(chatID int64, text string) jobs.Request {
	return jobs.NewRequest(chatID, chatID*10, text)
}

// requireNoLeftovers asserts that nothing at all remains under the work root.
func (h *harness) requireNoLeftovers(t *testing.T) {
	t.Helper()
	root := filepath.Join(h.cfg.DataDir, "requests")
	var left []string
	_ = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err == nil && p != root {
			left = append(left, p)
		}
		return nil
	})
	require.Empty(t, left, "files left behind: %s", strings.Join(left, ", "))
}

var errBoom = errors.New("boom")
