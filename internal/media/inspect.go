package media

import (
	"context"
	"io"
	"os"

	vidio "github.com/AlexEidt/Vidio"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"

	"github.com/wapuda/autoshorts/internal/jobs"
)

var (
	ErrNotVideo    = errors.New("file is not a recognised video container")
	ErrEmptySource = errors.New("source has no playable duration")
)

// probeResult is the subset of stream metadata the pipeline needs.
type probeResult struct {
	Duration float64
	Width    int
	Height   int
}

type probeFunc func(path string) (probeResult, error)

func vidioProbe(path string) (probeResult, error) {
	v, err := vidio.NewVideo(path)
	if err != nil {
		return probeResult{}, err
	}
	defer v.Close()
	return probeResult{Duration: v.Duration(), Width: v.Width(), Height: v.Height()}, nil
}

// Inspector opens an acquired file and reports its duration and frame size.
type Inspector struct {
	probe probeFunc
}

func NewInspector() *Inspector {
	return &Inspector{probe: vidioProbe}
}

// Inspect checks the container magic bytes before handing the file to
// ffprobe. Duration is truncated to whole seconds; anything under one second
// is ErrEmptySource.
func (in *Inspector) Inspect(ctx context.Context, path string) (jobs.SourceMedia, error) {
	if err := ctx.Err(); err != nil {
		return jobs.SourceMedia{}, err
	}
	if err := sniffVideo(path); err != nil {
		return jobs.SourceMedia{}, err
	}
	p, err := in.probe(path)
	if err != nil {
		return jobs.SourceMedia{}, errors.Wrap(err, "probe source")
	}
	dur := int(p.Duration)
	if dur <= 0 {
		return jobs.SourceMedia{}, errors.Wrapf(ErrEmptySource, "duration %.3fs", p.Duration)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return jobs.SourceMedia{}, errors.Wrapf(ErrNotVideo, "frame size %dx%d", p.Width, p.Height)
	}
	return jobs.SourceMedia{
		Path:     path,
		Duration: dur,
		Base:     jobs.Resolution{Width: p.Width, Height: p.Height},
	}, nil
}

func sniffVideo(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return errors.Wrap(ErrNotVideo, "empty file")
		}
		return errors.Wrap(err, "read header")
	}
	if !filetype.IsVideo(head[:n]) {
		return ErrNotVideo
	}
	return nil
}
