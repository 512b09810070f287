package media

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"

	logx "github.com/wapuda/autoshorts/internal/logs"
)

// Encoder renders a Composition with ffmpeg using a fixed codec pair and
// thread budget.
type Encoder struct {
	Bin        string
	VideoCodec string
	AudioCodec string
	Preset     string
	Threads    int
	Timeout    time.Duration
}

// Args is the full ffmpeg command line writing c to out.
func (e *Encoder) Args(c Composition, out string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}
	args = append(args, c.InputArgs()...)
	args = append(args,
		"-filter_complex", c.Filter,
		"-map", "[v]",
		"-map", "0:a?",
		"-c:v", e.VideoCodec,
	)
	if e.Preset != "" {
		args = append(args, "-preset", e.Preset)
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-c:a", e.AudioCodec,
		"-threads", strconv.Itoa(e.Threads),
		"-t", strconv.Itoa(c.Duration),
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	)
	return args
}

// Encode writes dest atomically: ffmpeg renders into dest+".part" which is
// renamed on success and removed on failure.
func (e *Encoder) Encode(ctx context.Context, c Composition, dest string) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	log := logx.FromCtx(ctx).With().Int("segment", c.Index).Logger()

	tmp := dest + ".part"
	if err := run(ctx, log, "ffmpeg", e.Bin, e.Args(c, tmp), nil); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "encode segment %d", c.Index)
	}
	if err := nonEmpty(tmp); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "encode segment %d", c.Index)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "finalize segment %d", c.Index)
	}
	return nil
}
