package media

import (
	"context"
	"io"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"

	logx "github.com/wapuda/autoshorts/internal/logs"
)

// ProgressSink receives download progress in whole percent. Calls are
// synchronous and come from the acquirer's goroutine.
type ProgressSink interface {
	Progress(percent int)
}

// ProgressFunc adapts a plain function to ProgressSink.
type ProgressFunc func(percent int)

func (f ProgressFunc) Progress(percent int) { f(percent) }

var progressRe = regexp.MustCompile(`^\[download\]\s+(\d{1,3}(?:\.\d+)?)%`)

// parseProgress extracts the percentage from a yt-dlp --newline progress line.
func parseProgress(line string) (int, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil || f < 0 || f > 100 {
		return 0, false
	}
	return int(f), true
}

// YtDlp downloads one video per call with the yt-dlp CLI.
type YtDlp struct {
	Bin     string
	Format  string        // -f selector
	Timeout time.Duration // 0 = no limit
}

func NewYtDlp(bin, format string, timeout time.Duration) *YtDlp {
	return &YtDlp{Bin: bin, Format: format, Timeout: timeout}
}

// Acquire downloads url to dest. On any failure dest (and yt-dlp's .part
// file) is removed so nothing downstream can pick up a truncated file.
func (y *YtDlp) Acquire(ctx context.Context, url, dest string, sink ProgressSink) error {
	if y.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.Timeout)
		defer cancel()
	}
	log := logx.FromCtx(ctx)

	args := []string{
		"--no-playlist",
		"--newline",
		"--no-warnings",
		"--no-mtime",
		"-f", y.Format,
		"--merge-output-format", "mp4",
		"-o", dest,
		url,
	}

	last := -1
	onLine := func(line string) {
		pct, ok := parseProgress(line)
		if !ok || pct <= last || sink == nil {
			return
		}
		last = pct
		sink.Progress(pct)
	}

	if err := run(ctx, log, "yt-dlp", y.Bin, args, onLine); err != nil {
		removePartial(dest)
		return errors.Wrap(err, "download")
	}
	if err := nonEmpty(dest); err != nil {
		removePartial(dest)
		return err
	}
	return nil
}

// LocalFile "acquires" a file already on disk by copying it into the work
// directory, so the janitor may delete the copy without touching the original.
type LocalFile struct{}

func (LocalFile) Acquire(ctx context.Context, src, dest string, sink ProgressSink) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "create destination")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		removePartial(dest)
		return errors.Wrap(err, "copy source")
	}
	if err := out.Close(); err != nil {
		removePartial(dest)
		return errors.Wrap(err, "close destination")
	}
	if sink != nil {
		sink.Progress(100)
	}
	return ctx.Err()
}

func nonEmpty(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "output file missing")
	}
	if fi.Size() == 0 {
		return errors.New("output file is empty")
	}
	return nil
}

func removePartial(path string) {
	_ = os.Remove(path)
	_ = os.Remove(path + ".part")
}
