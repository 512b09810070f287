// Package media wraps the external tools the pipeline shells out to: yt-dlp
// for acquisition, ffprobe (through Vidio) for inspection and ffmpeg for
// compositing and encoding.
package media

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	logx "github.com/wapuda/autoshorts/internal/logs"
)

const (
	stderrTail = 5
	waitDelay  = 5 * time.Second
)

// tail keeps the last n lines written to it.
type tail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func (t *tail) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}

// run executes bin with args, streaming both pipes into the logger. onStdout,
// if set, sees every stdout line. A non-zero exit is reported together with
// the last lines of stderr.
func run(ctx context.Context, log zerolog.Logger, proc, bin string, args []string, onStdout func(string)) error {
	errTail := &tail{n: stderrTail}
	fields := map[string]string{"proc": proc}
	outW := logx.NewLineWriter(log, fields, zerolog.DebugLevel)
	if onStdout != nil {
		outW.Tap(onStdout)
	}
	errW := logx.NewLineWriter(log, fields, zerolog.DebugLevel).Tap(errTail.add)

	outR, outPW := io.Pipe()
	errR, errPW := io.Pipe()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); outW.Pipe(outR); _, _ = io.Copy(io.Discard, outR) }()
	go func() { defer wg.Done(); errW.Pipe(errR); _, _ = io.Copy(io.Discard, errR) }()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = outPW
	cmd.Stderr = errPW
	// Children (ffmpeg under yt-dlp) may hold the pipes after a kill.
	cmd.WaitDelay = waitDelay

	log.Debug().Str("proc", proc).Strs("args", args).Msg("exec")
	err := cmd.Run()
	outPW.Close()
	errPW.Close()
	wg.Wait()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ctxErr, "%s interrupted", proc)
		}
		if msg := errTail.String(); msg != "" {
			return errors.Wrapf(err, "%s failed: %s", proc, msg)
		}
		return errors.Wrapf(err, "%s failed", proc)
	}
	return nil
}
