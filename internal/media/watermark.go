package media

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// WatermarkAsset is probed once per pipeline run and shared read-only by
// every segment's composition.
type WatermarkAsset struct {
	Path   string
	Width  int // after scaling to Height, rounded to even
	Height int
	kind   watermarkKind
}

type watermarkKind int

const (
	wmClip watermarkKind = iota
	wmGIF
	wmStill
)

// LoadWatermark probes path and fixes the overlay size for the given height.
func LoadWatermark(path string, height int) (*WatermarkAsset, error) {
	return loadWatermark(vidioProbe, path, height)
}

func loadWatermark(probe probeFunc, path string, height int) (*WatermarkAsset, error) {
	if height <= 0 {
		return nil, errors.Errorf("watermark height must be positive, got %d", height)
	}
	p, err := probe(path)
	if err != nil {
		return nil, errors.Wrapf(err, "probe watermark %s", path)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, errors.Errorf("watermark %s has no frames", path)
	}
	w := even(int(float64(p.Width)*float64(height)/float64(p.Height) + 0.5))
	if w < 2 {
		w = 2
	}
	return &WatermarkAsset{
		Path:   path,
		Width:  w,
		Height: even(height),
		kind:   kindOf(path),
	}, nil
}

func kindOf(path string) watermarkKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gif":
		return wmGIF
	case ".png", ".jpg", ".jpeg", ".webp", ".bmp":
		return wmStill
	default:
		return wmClip
	}
}

// InputArgs makes ffmpeg repeat the watermark forever; the base segment
// decides where the output ends.
func (w *WatermarkAsset) InputArgs() []string {
	switch w.kind {
	case wmGIF:
		return []string{"-ignore_loop", "0", "-i", w.Path}
	case wmStill:
		return []string{"-loop", "1", "-i", w.Path}
	default:
		return []string{"-stream_loop", "-1", "-i", w.Path}
	}
}

func (w *WatermarkAsset) scaleFilter() string {
	return "scale=" + strconv.Itoa(w.Width) + ":" + strconv.Itoa(w.Height)
}

func even(x int) int {
	if x%2 == 0 {
		return x
	}
	return x - 1
}
