package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wapuda/autoshorts/internal/config"
	"github.com/wapuda/autoshorts/internal/jobs"
	logx "github.com/wapuda/autoshorts/internal/logs"
	"github.com/wapuda/autoshorts/internal/media"
	"github.com/wapuda/autoshorts/internal/pipeline"
)

// console stands in for Telegram: texts go to stdout, videos are copied
// into outDir before the pipeline removes its temp files.
type console struct {
	outDir string
	mu     sync.Mutex
	n      int
}

func (c *console) SendUploading(context.Context, int64) error { return nil }

func (c *console) SendText(_ context.Context, _ int64, text string) (int, error) {
	fmt.Println(">", text)
	return 1, nil
}

func (c *console) EditText(_ context.Context, _ int64, _ int, text string) error {
	fmt.Println("~", text)
	return nil
}

func (c *console) SendJoinPrompt(context.Context, int64) error { return nil }

func (c *console) SendVideo(_ context.Context, _ int64, path, caption string) error {
	c.mu.Lock()
	c.n++
	dst := filepath.Join(c.outDir, fmt.Sprintf("short_%02d.mp4", c.n))
	c.mu.Unlock()

	if err := copyFile(path, dst); err != nil {
		return err
	}
	fmt.Printf("Generated: %s (caption %d chars)\n", dst, len([]rune(caption)))
	return nil
}

type allowAll struct{}

func (allowAll) IsMember(context.Context, int64) (bool, error) { return true, nil }

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/localtest <input.mp4> [out-dir]")
		return
	}
	in := os.Args[1]
	out := "./out"
	if len(os.Args) > 2 {
		out = os.Args[2]
	}

	c := config.Load()
	logx.Setup(logx.FromEnv("localtest"))
	if err := os.MkdirAll(out, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create out dir")
	}

	msg := &console{outDir: out}
	orch := pipeline.New(&c, pipeline.Deps{
		Gate:      allowAll{},
		Messenger: msg,
		Acquirer:  media.LocalFile{},
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
	})

	res := orch.Process(context.Background(), jobs.NewRequest(0, 0, in))
	if res.Err != nil {
		fmt.Fprintln(os.Stderr, "failed:", res.Err)
		os.Exit(1)
	}
	fmt.Printf("Done: %d/%d shorts in %s\n", res.Delivered, res.Planned, out)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	o, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(o, in); err != nil {
		o.Close()
		return err
	}
	return o.Close()
}
