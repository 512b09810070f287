// Package pipeline turns one inbound link into delivered shorts: gate,
// acquire, inspect, plan, then composite, encode and deliver each segment in
// order, with the work directory removed on every exit path.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/wapuda/autoshorts/internal/config"
	"github.com/wapuda/autoshorts/internal/jobs"
	logx "github.com/wapuda/autoshorts/internal/logs"
	"github.com/wapuda/autoshorts/internal/media"
	"github.com/wapuda/autoshorts/internal/metrics"
)

// State is a step of the request state machine.
type State string

const (
	StateGated      State = "gated"
	StateAcquiring  State = "acquiring"
	StateInspecting State = "inspecting"
	StateSegmenting State = "segmenting"
	StateFailed     State = "failed"
	StateCleanup    State = "cleanup"
	StateDone       State = "done"
)

const sourceName = "source.mp4"

// Result describes how one request ended.
type Result struct {
	RequestID string
	Trace     []State // states entered, in order
	Planned   int
	Delivered int
	Err       *Failure // nil when every planned short was delivered
}

func (r *Result) enter(s State) { r.Trace = append(r.Trace, s) }

func (r *Result) fail(f *Failure) {
	r.Err = f
	r.enter(StateFailed)
}

// Deps are the collaborators one Orchestrator shares across requests.
type Deps struct {
	Gate      Gate
	Messenger Messenger
	Acquirer  Acquirer
	Inspector Inspector
	Watermark WatermarkLoader
	Encoder   Encoder
	Captions  CaptionSource
	Metrics   *metrics.Metrics // optional
}

// Orchestrator runs requests. It holds no per-request state, so one value
// serves any number of concurrent requests.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps
}

func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{cfg: cfg, deps: deps}
}

// Handle gates the requester, validates the link and runs the pipeline.
// Failures are reported to the chat; Handle never panics.
func (o *Orchestrator) Handle(ctx context.Context, req jobs.Request) (res Result) {
	ctx = logx.WithRequest(ctx, req.ID, req.ChatID, req.UserID)
	res.RequestID = req.ID
	defer o.finish(ctx, &res)

	res.enter(StateGated)
	admitted, f := o.Admit(ctx, req)
	if f != nil {
		res.fail(f)
		return res
	}
	o.run(ctx, admitted, &res)
	return res
}

// Admit runs the cheap checks that need no pipeline slot: the membership
// gate, then link validation. A rejected requester gets the join prompt or
// the invalid-link reply before Admit returns. On success the returned
// request carries the normalized link.
func (o *Orchestrator) Admit(ctx context.Context, req jobs.Request) (jobs.Request, *Failure) {
	ctx = logx.WithRequest(ctx, req.ID, req.ChatID, req.UserID)
	log := logx.FromCtx(ctx)

	ok, err := o.deps.Gate.IsMember(ctx, req.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("membership check failed; treating as not a member")
	}
	if err != nil || !ok {
		o.deps.Metrics.RequestRejected(string(KindUnauthorized))
		if perr := o.deps.Messenger.SendJoinPrompt(ctx, req.ChatID); perr != nil {
			log.Warn().Err(perr).Msg("join prompt not sent")
		}
		log.Info().Msg("request rejected: not a member")
		return req, fail(KindUnauthorized, err)
	}

	link, valid := jobs.NormalizeLink(req.URL)
	if !valid {
		o.deps.Metrics.RequestRejected(string(KindInvalidInput))
		o.say(ctx, req.ChatID, TextInvalidLink)
		log.Info().Msg("request rejected: invalid link")
		return req, fail(KindInvalidInput, fmt.Errorf("%q", req.URL))
	}
	req.URL = link
	return req, nil
}

// Process runs the pipeline for a request that has already been gated and
// validated.
func (o *Orchestrator) Process(ctx context.Context, req jobs.Request) (res Result) {
	ctx = logx.WithRequest(ctx, req.ID, req.ChatID, req.UserID)
	res.RequestID = req.ID
	defer o.finish(ctx, &res)
	o.run(ctx, req, &res)
	return res
}

func (o *Orchestrator) finish(ctx context.Context, res *Result) {
	log := logx.FromCtx(ctx)
	if r := recover(); r != nil {
		log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("pipeline panic")
		res.fail(fail(KindInternal, fmt.Errorf("panic: %v", r)))
	}
	if n := len(res.Trace); n == 0 || res.Trace[n-1] != StateCleanup {
		res.enter(StateCleanup)
	}
	res.enter(StateDone)

	ev := log.Info()
	if res.Err != nil {
		ev = log.Warn().Err(res.Err).Str("kind", string(res.Err.Kind))
	}
	ev.Int("planned", res.Planned).Int("delivered", res.Delivered).Msg("request finished")
}

func (o *Orchestrator) run(ctx context.Context, req jobs.Request, res *Result) {
	log := logx.FromCtx(ctx)
	o.deps.Metrics.PipelineStarted()
	outcome := "ok"
	defer func() { o.deps.Metrics.PipelineFinished(outcome) }()

	st := newStatus(ctx, o.deps.Messenger, req.ChatID, textStarting, log)
	failed := func(f *Failure) {
		res.fail(f)
		outcome = string(f.Kind)
		// The status edit must go out even when ctx was cancelled.
		st.set(context.WithoutCancel(ctx), userMessage(f, res.Planned))
	}

	jan := NewJanitor(filepath.Join(o.cfg.DataDir, "requests", req.ID), log)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("pipeline panic")
			failed(fail(KindInternal, fmt.Errorf("panic: %v", r)))
		}
		res.enter(StateCleanup)
		_ = jan.Cleanup()
	}()

	if err := jan.Prepare(); err != nil {
		failed(fail(KindInternal, fmt.Errorf("work dir: %w", err)))
		return
	}
	wm, err := o.deps.Watermark.Load(ctx)
	if err != nil {
		failed(fail(KindInternal, fmt.Errorf("watermark: %w", err)))
		return
	}

	res.enter(StateAcquiring)
	srcPath := jan.Track(sourceName)
	if err := o.deps.Acquirer.Acquire(ctx, req.URL, srcPath, media.ProgressFunc(st.downloadSink(ctx))); err != nil {
		failed(fail(KindAcquisition, err))
		return
	}
	st.set(ctx, textDownloaded)

	res.enter(StateInspecting)
	src, err := o.deps.Inspector.Inspect(ctx, srcPath)
	if err != nil {
		failed(fail(KindInspection, err))
		return
	}
	plan := jobs.Plan(src.Duration, o.cfg.ShortDuration)
	res.Planned = len(plan)
	log.Info().Int("duration_s", src.Duration).Int("shorts", len(plan)).
		Int("width", src.Base.Width).Int("height", src.Base.Height).Msg("source inspected")

	res.enter(StateSegmenting)
	comp := media.NewCompositor(
		jobs.Resolution{Width: o.cfg.TargetWidth, Height: o.cfg.TargetHeight},
		o.cfg.WatermarkBottomOffset, wm)
	rep := NewReporter(o.deps.Messenger, o.deps.Captions, req.ChatID)

	for _, seg := range plan {
		st.set(ctx, fmt.Sprintf(textCutting, seg.Index+1, len(plan)))
		if err := o.segment(ctx, jan, comp, rep, src, seg, len(plan)); err != nil {
			failed(failSegment(seg.Index, err))
			return
		}
		res.Delivered = rep.Delivered()
		o.deps.Metrics.SegmentDelivered()
	}

	if err := jan.Release(srcPath); err != nil {
		log.Warn().Err(err).Msg("source not removed")
	}
	st.set(ctx, fmt.Sprintf(textDone, res.Delivered))
}

// segment composites, encodes and delivers one short. The rendered file is
// removed as soon as its delivery attempt is over.
func (o *Orchestrator) segment(ctx context.Context, jan *Janitor, comp *media.Compositor, rep *Reporter,
	src jobs.SourceMedia, seg jobs.SegmentSpec, total int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := comp.Compose(src, seg)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	out := jan.Track(fmt.Sprintf("short_%03d.mp4", seg.Index))
	defer func() {
		if err := jan.Release(out); err != nil {
			l := logx.FromCtx(ctx)
			l.Warn().Err(err).Str("path", out).Msg("short not removed")
		}
	}()

	start := time.Now()
	if err := o.deps.Encoder.Encode(ctx, c, out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	o.deps.Metrics.ObserveEncode(time.Since(start))

	return rep.Deliver(ctx, jobs.RenderedSegment{Path: out, Index: seg.Index, Total: total})
}

func (o *Orchestrator) say(ctx context.Context, chatID int64, text string) {
	if _, err := o.deps.Messenger.SendText(ctx, chatID, text); err != nil {
		l := logx.FromCtx(ctx)
		l.Warn().Err(err).Msg("reply not sent")
	}
}

// Outcome is the metrics label for a result.
func (r Result) Outcome() string {
	if r.Err == nil {
		return "ok"
	}
	return string(r.Err.Kind)
}
