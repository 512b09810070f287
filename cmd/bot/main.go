package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/autoshorts/internal/config"
	"github.com/wapuda/autoshorts/internal/inflight"
	"github.com/wapuda/autoshorts/internal/jobs"
	logx "github.com/wapuda/autoshorts/internal/logs"
	"github.com/wapuda/autoshorts/internal/media"
	"github.com/wapuda/autoshorts/internal/metrics"
	"github.com/wapuda/autoshorts/internal/pipeline"
	"github.com/wapuda/autoshorts/internal/telegram"
)

const shutdownTimeout = 30 * time.Second

// chatClient is the Telegram side the front end talks to directly.
type chatClient interface {
	pipeline.Gate
	pipeline.Messenger
}

type server struct {
	ctx    context.Context
	cfg    *config.Config
	tg     chatClient
	orch   *pipeline.Orchestrator
	locker inflight.Locker
	sem    chan struct{}
	wg     sync.WaitGroup

	cmu     sync.Mutex
	cancels map[int64]map[string]context.CancelFunc // chatID -> requestID -> cancel
}

func main() {
	c := config.Load()
	logx.Setup(logx.FromEnv("bot"))
	log.Info().Msg("bot starting")

	if err := c.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	workRoot := filepath.Join(c.DataDir, "requests")
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create data dir")
	}
	if n, err := pipeline.SweepStale(workRoot, c.StaleAfter, time.Now()); err != nil {
		log.Warn().Err(err).Int("removed", n).Msg("stale sweep incomplete")
	} else if n > 0 {
		log.Info().Int("removed", n).Msg("removed stale work dirs")
	}

	bot, err := tgbotapi.NewBotAPI(c.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth failed")
	}
	bot.Debug = false
	log.Info().Str("username", bot.Self.UserName).Msg("bot authorized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var locker inflight.Locker = inflight.NewMemory()
	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", c.RedisAddr).Msg("redis unreachable")
		}
		defer rdb.Close()
		locker = inflight.NewRedis(rdb, c.LockTTL)
	}

	met := metrics.New()
	tg := telegram.New(bot, c.GateChannel, c.ChannelURL(), c.SendRetries)
	orch := pipeline.New(&c, pipeline.Deps{
		Gate:      tg,
		Messenger: tg,
		Acquirer:  media.NewYtDlp(c.YtDlpBin, c.FormatSelector, c.AcquireTimeout),
		Inspector: media.NewInspector(),
		Watermark: pipeline.FileWatermark{Path: c.WatermarkPath, Height: c.WatermarkHeight},
		Encoder: &media.Encoder{
			Bin:        c.FFmpegBin,
			VideoCodec: c.VideoCodec,
			AudioCodec: c.AudioCodec,
			Preset:     c.EncodePreset,
			Threads:    c.EncodeThreads,
			Timeout:    c.EncodeTimeout,
		},
		Captions: pipeline.FileCaption{Path: c.CaptionPath},
		Metrics:  met,
	})

	s := &server{
		ctx:     ctx,
		cfg:     &c,
		tg:      tg,
		orch:    orch,
		locker:  locker,
		sem:     make(chan struct{}, c.MaxConcurrent),
		cancels: make(map[int64]map[string]context.CancelFunc),
	}

	srv := &http.Server{Addr: c.HTTPAddr, Handler: routes(met)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
		}
	}()
	log.Info().Str("addr", c.HTTPAddr).Msg("health and metrics listening")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case upd, ok := <-updates:
			if !ok {
				break loop
			}
			if upd.Message != nil {
				s.onMessage(upd.Message)
			}
		}
	}

	log.Info().Msg("shutdown signal received, stopping")
	bot.StopReceivingUpdates()
	s.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	log.Info().Msg("bot stopped")
}

func routes(met *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Method(http.MethodGet, "/metrics", met.Handler())
	return r
}

// --- Handlers ---

func (s *server) onMessage(m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil {
		return
	}
	log.Info().
		Int64("chat_id", m.Chat.ID).
		Int64("user_id", m.From.ID).
		Msg("message received")

	if m.IsCommand() {
		switch m.Command() {
		case "start":
			s.onStart(m)
		case "help":
			s.reply(m.Chat.ID, fmt.Sprintf(pipeline.TextHelp, s.cfg.ShortDuration))
		case "cancel":
			if s.cancel(m.Chat.ID) {
				log.Info().Int64("chat_id", m.Chat.ID).Msg("pipeline cancel requested")
			} else {
				s.reply(m.Chat.ID, pipeline.TextNothingToCancel)
			}
		default:
			s.reply(m.Chat.ID, "Unknown command. Send a YouTube link to start.")
		}
		return
	}
	if m.Text == "" {
		return
	}

	req := jobs.NewRequest(m.Chat.ID, m.From.ID, m.Text)
	s.wg.Add(1)
	go s.serve(req)
}

func (s *server) onStart(m *tgbotapi.Message) {
	ok, err := s.tg.IsMember(s.ctx, m.From.ID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", m.From.ID).Msg("membership check failed")
	}
	if err != nil || !ok {
		if err := s.tg.SendJoinPrompt(s.ctx, m.Chat.ID); err != nil {
			log.Warn().Err(err).Msg("join prompt not sent")
		}
		return
	}
	s.reply(m.Chat.ID, pipeline.TextWelcome)
}

// serve runs one request on its own goroutine. Gate and link checks answer
// right away; only admitted requests compete for the chat's in-flight lock
// and one of MaxConcurrent pipeline slots.
func (s *server) serve(req jobs.Request) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("rid", req.ID).Msg("request goroutine panic")
		}
	}()

	req, rejected := s.orch.Admit(s.ctx, req)
	if rejected != nil {
		return
	}

	held, err := s.locker.Acquire(s.ctx, req.ChatID, req.ID)
	if err != nil {
		log.Warn().Err(err).Str("rid", req.ID).Msg("in-flight lock unavailable, continuing")
		held = true
	}
	if !held {
		s.reply(req.ChatID, pipeline.TextBusy)
		return
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(s.ctx), req.ChatID, req.ID); err != nil {
			log.Warn().Err(err).Str("rid", req.ID).Msg("in-flight lock not released")
		}
	}()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	s.setCancel(req.ChatID, req.ID, cancel)
	defer s.clearCancel(req.ChatID, req.ID)
	go inflight.Hold(ctx, s.locker, req.ChatID, req.ID, s.cfg.LockRefresh())

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		s.reply(req.ChatID, pipeline.TextCancelled)
		return
	}
	defer func() { <-s.sem }()

	res := s.orch.Process(ctx, req)
	log.Info().Str("rid", req.ID).Str("outcome", res.Outcome()).Int("delivered", res.Delivered).Msg("request done")
}

func (s *server) setCancel(chatID int64, requestID string, cancel context.CancelFunc) {
	s.cmu.Lock()
	defer s.cmu.Unlock()
	if s.cancels[chatID] == nil {
		s.cancels[chatID] = make(map[string]context.CancelFunc)
	}
	s.cancels[chatID][requestID] = cancel
}

func (s *server) clearCancel(chatID int64, requestID string) {
	s.cmu.Lock()
	defer s.cmu.Unlock()
	delete(s.cancels[chatID], requestID)
	if len(s.cancels[chatID]) == 0 {
		delete(s.cancels, chatID)
	}
}

// cancel stops every pipeline of the chat and reports whether there was one.
func (s *server) cancel(chatID int64) bool {
	s.cmu.Lock()
	fns := make([]context.CancelFunc, 0, len(s.cancels[chatID]))
	for _, fn := range s.cancels[chatID] {
		fns = append(fns, fn)
	}
	s.cmu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns) > 0
}

func (s *server) reply(chatID int64, text string) {
	if _, err := s.tg.SendText(s.ctx, chatID, text); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}
