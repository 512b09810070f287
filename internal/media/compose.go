package media

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/wapuda/autoshorts/internal/jobs"
)

// Composition is a ready-to-render ffmpeg graph for one segment: the base
// slice letterboxed into the target frame with the watermark laid on top.
// Nothing is written until an Encoder renders it.
type Composition struct {
	Index     int
	Source    string
	Start     int
	Duration  int
	Size      jobs.Resolution
	Watermark *WatermarkAsset
	Filter    string
}

// InputArgs returns the ffmpeg input options: the trimmed source as input 0
// and the looping watermark as input 1.
func (c Composition) InputArgs() []string {
	args := []string{
		"-ss", strconv.Itoa(c.Start),
		"-t", strconv.Itoa(c.Duration),
		"-i", c.Source,
	}
	return append(args, c.Watermark.InputArgs()...)
}

// Compositor places the watermark horizontally centered with its top edge
// BottomOffset pixels above the bottom of the frame.
type Compositor struct {
	Size         jobs.Resolution
	BottomOffset int
	Watermark    *WatermarkAsset
}

func NewCompositor(size jobs.Resolution, bottomOffset int, wm *WatermarkAsset) *Compositor {
	return &Compositor{Size: size, BottomOffset: bottomOffset, Watermark: wm}
}

func (c *Compositor) Compose(src jobs.SourceMedia, seg jobs.SegmentSpec) (Composition, error) {
	switch {
	case c.Watermark == nil:
		return Composition{}, errors.New("compositor has no watermark")
	case src.Path == "":
		return Composition{}, errors.New("source has no path")
	case seg.Start < 0 || seg.Duration() <= 0:
		return Composition{}, errors.Errorf("segment %d is empty: [%d,%d)", seg.Index, seg.Start, seg.End)
	case seg.End > src.Duration:
		return Composition{}, errors.Errorf("segment %d ends at %ds past source duration %ds", seg.Index, seg.End, src.Duration)
	}
	return Composition{
		Index:     seg.Index,
		Source:    src.Path,
		Start:     seg.Start,
		Duration:  seg.Duration(),
		Size:      c.Size,
		Watermark: c.Watermark,
		Filter:    c.filter(),
	}, nil
}

// filter letterboxes input 0 into Size and overlays input 1. shortest=1 cuts
// the endless watermark at the end of the base slice.
func (c *Compositor) filter() string {
	w, h := c.Size.Width, c.Size.Height
	return fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,"+
			"pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1[base];"+
			"[1:v]%s,format=rgba[wm];"+
			"[base][wm]overlay=x=(main_w-overlay_w)/2:y=main_h-%d:shortest=1:format=auto[v]",
		w, h, w, h, c.Watermark.scaleFilter(), c.BottomOffset,
	)
}
