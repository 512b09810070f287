// Package config holds the static settings the bot is started with.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and passed by reference; nothing in it
// changes while the process runs.
type Config struct {
	BotToken    string
	GateChannel string // "@username" or numeric chat id

	WatermarkPath         string
	CaptionPath           string
	ShortDuration         int // seconds per segment
	TargetWidth           int
	TargetHeight          int
	WatermarkHeight       int
	WatermarkBottomOffset int

	VideoCodec    string
	AudioCodec    string
	EncodePreset  string
	EncodeThreads int

	DataDir        string
	FormatSelector string
	YtDlpBin       string
	FFmpegBin      string

	AcquireTimeout time.Duration
	EncodeTimeout  time.Duration
	SendRetries    int
	MaxConcurrent  int

	RedisAddr  string
	LockTTL    time.Duration
	HTTPAddr   string
	StaleAfter time.Duration
}

// Load reads .env files (missing files are ignored) and then the process
// environment.
func Load(paths ...string) Config {
	_ = godotenv.Load(paths...)
	return FromEnv()
}

// FromEnv builds a Config from the environment with defaults.
func FromEnv() Config {
	return Config{
		BotToken:    os.Getenv("BOT_TOKEN"),
		GateChannel: getenv("GATE_CHANNEL", "@AutoShortYouTubeID"),

		WatermarkPath:         getenv("WATERMARK_PATH", "wm.gif"),
		CaptionPath:           getenv("CAPTION_PATH", "caption.txt"),
		ShortDuration:         mustInt("SHORT_DURATION", 60),
		TargetWidth:           mustInt("TARGET_WIDTH", 720),
		TargetHeight:          mustInt("TARGET_HEIGHT", 1280),
		WatermarkHeight:       mustInt("WATERMARK_HEIGHT", 100),
		WatermarkBottomOffset: mustInt("WATERMARK_BOTTOM_OFFSET", 200),

		VideoCodec:    getenv("VIDEO_CODEC", "libx264"),
		AudioCodec:    getenv("AUDIO_CODEC", "aac"),
		EncodePreset:  getenv("ENCODE_PRESET", "veryfast"),
		EncodeThreads: mustInt("ENCODE_THREADS", 4),

		DataDir:        getenv("DATA_DIR", "./data"),
		FormatSelector: getenv("FORMAT_SELECTOR", "best[ext=mp4][vcodec!=none][acodec!=none]/best[ext=mp4]/best"),
		YtDlpBin:       getenv("YTDLP_BIN", "yt-dlp"),
		FFmpegBin:      getenv("FFMPEG_BIN", "ffmpeg"),

		AcquireTimeout: mustDuration("ACQUIRE_TIMEOUT", 15*time.Minute),
		EncodeTimeout:  mustDuration("ENCODE_TIMEOUT", 10*time.Minute),
		SendRetries:    mustInt("SEND_RETRIES", 3),
		MaxConcurrent:  mustInt("MAX_CONCURRENT", 4),

		RedisAddr:  os.Getenv("REDIS_ADDR"),
		LockTTL:    mustDuration("LOCK_TTL", 2*time.Hour),
		HTTPAddr:   getenv("HTTP_ADDR", ":8080"),
		StaleAfter: mustDuration("STALE_AFTER", 6*time.Hour),
	}
}

// minLockTTL keeps the refresh interval (LockTTL/3) well above Redis latency.
const minLockTTL = 30 * time.Second

// LockRefresh is how often a running pipeline extends its in-flight lock.
func (c Config) LockRefresh() time.Duration { return c.LockTTL / 3 }

// Validate reports the first setting the pipeline cannot run with.
func (c Config) Validate() error {
	switch {
	case c.BotToken == "":
		return errors.New("BOT_TOKEN is required")
	case c.ShortDuration <= 0:
		return fmt.Errorf("SHORT_DURATION must be positive, got %d", c.ShortDuration)
	case c.TargetWidth <= 0 || c.TargetHeight <= 0:
		return fmt.Errorf("target resolution must be positive, got %dx%d", c.TargetWidth, c.TargetHeight)
	case c.TargetWidth%2 != 0 || c.TargetHeight%2 != 0:
		return fmt.Errorf("target resolution must be even for yuv420p, got %dx%d", c.TargetWidth, c.TargetHeight)
	case c.WatermarkHeight <= 0 || c.WatermarkHeight > c.TargetHeight:
		return fmt.Errorf("WATERMARK_HEIGHT out of range: %d", c.WatermarkHeight)
	case c.WatermarkBottomOffset < c.WatermarkHeight || c.WatermarkBottomOffset > c.TargetHeight:
		return fmt.Errorf("WATERMARK_BOTTOM_OFFSET out of range: %d", c.WatermarkBottomOffset)
	case c.EncodeThreads <= 0:
		return fmt.Errorf("ENCODE_THREADS must be positive, got %d", c.EncodeThreads)
	case c.MaxConcurrent <= 0:
		return fmt.Errorf("MAX_CONCURRENT must be positive, got %d", c.MaxConcurrent)
	case c.LockTTL < minLockTTL:
		return fmt.Errorf("LOCK_TTL must be at least %s, got %s", minLockTTL, c.LockTTL)
	}
	return nil
}

// ChannelURL is the public link shown in the join prompt, or "" when the
// gate channel is a numeric id.
func (c Config) ChannelURL() string {
	if !strings.HasPrefix(c.GateChannel, "@") {
		return ""
	}
	return "https://t.me/" + strings.TrimPrefix(c.GateChannel, "@")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func mustInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// mustDuration accepts Go durations ("90s", "15m") or bare seconds.
func mustDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
