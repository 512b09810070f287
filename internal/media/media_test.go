package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wapuda/autoshorts/internal/jobs"
)

// writeScript drops an executable shell script standing in for an external tool.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// mp4Header is enough of an ISO BMFF header for magic-byte detection.
func mp4Header() []byte {
	b := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2'}
	return append(b, make([]byte, 300)...)
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want int
		ok   bool
	}{
		{"[download]   0.0% of ~ 10.00MiB at  1.00MiB/s ETA 00:10", 0, true},
		{"[download]  42.7% of 10.00MiB at 2.00MiB/s ETA 00:03", 42, true},
		{"[download] 100% of 10.00MiB in 00:05", 100, true},
		{"[download] Destination: /tmp/x.mp4", 0, false},
		{"[youtube] dQw4w9WgXcQ: Downloading webpage", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseProgress(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

const fakeYtDlp = `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
echo "[download]  10.0% of 1.00MiB"
echo "[download]  10.5% of 1.00MiB"
echo "[download]  55.0% of 1.00MiB"
echo "[download] 100.0% of 1.00MiB"
printf 'video-bytes' > "$out"
`

func TestYtDlpAcquireReportsProgress(t *testing.T) {
	bin := writeScript(t, fakeYtDlp)
	dest := filepath.Join(t.TempDir(), "source.mp4")

	var got []int
	y := NewYtDlp(bin, "best", 0)
	err := y.Acquire(context.Background(), "https://youtu.be/dQw4w9WgXcQ", dest, ProgressFunc(func(p int) { got = append(got, p) }))
	require.NoError(t, err)

	assert.Equal(t, []int{10, 55, 100}, got)
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(b))
}

func TestYtDlpAcquireFailureRemovesPartial(t *testing.T) {
	bin := writeScript(t, `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
printf 'half' > "$out"
printf 'half' > "$out.part"
echo "ERROR: Video unavailable" >&2
exit 1
`)
	dest := filepath.Join(t.TempDir(), "source.mp4")

	err := NewYtDlp(bin, "best", 0).Acquire(context.Background(), "https://youtu.be/dQw4w9WgXcQ", dest, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Video unavailable")
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
}

func TestYtDlpAcquireEmptyOutput(t *testing.T) {
	bin := writeScript(t, "exit 0\n")
	dest := filepath.Join(t.TempDir(), "source.mp4")

	err := NewYtDlp(bin, "best", 0).Acquire(context.Background(), "u", dest, nil)
	assert.Error(t, err)
	assert.NoFileExists(t, dest)
}

func TestLocalFileAcquire(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.mp4")
	dest := filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0o644))

	var last int
	require.NoError(t, LocalFile{}.Acquire(context.Background(), src, dest, ProgressFunc(func(p int) { last = p })))
	assert.Equal(t, 100, last)
	assert.FileExists(t, src)
	b, _ := os.ReadFile(dest)
	assert.Equal(t, "abc", string(b))

	assert.Error(t, LocalFile{}.Acquire(context.Background(), filepath.Join(dir, "missing"), dest, nil))
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "v.mp4")
	text := filepath.Join(dir, "t.mp4")
	empty := filepath.Join(dir, "e.mp4")
	require.NoError(t, os.WriteFile(video, mp4Header(), 0o644))
	require.NoError(t, os.WriteFile(text, []byte("<!doctype html><html>nope</html>"), 0o644))
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	probe := probeResult{Duration: 150.97, Width: 1920, Height: 1080}
	in := &Inspector{probe: func(string) (probeResult, error) { return probe, nil }}

	src, err := in.Inspect(context.Background(), video)
	require.NoError(t, err)
	assert.Equal(t, jobs.SourceMedia{Path: video, Duration: 150, Base: jobs.Resolution{Width: 1920, Height: 1080}}, src)

	_, err = in.Inspect(context.Background(), text)
	assert.True(t, errors.Is(err, ErrNotVideo))
	_, err = in.Inspect(context.Background(), empty)
	assert.True(t, errors.Is(err, ErrNotVideo))

	probe.Duration = 0.4
	_, err = in.Inspect(context.Background(), video)
	assert.True(t, errors.Is(err, ErrEmptySource))

	in.probe = func(string) (probeResult, error) { return probeResult{}, errors.New("moov atom not found") }
	_, err = in.Inspect(context.Background(), video)
	assert.ErrorContains(t, err, "moov atom not found")
}

func TestLoadWatermark(t *testing.T) {
	probe := func(string) (probeResult, error) { return probeResult{Duration: 2, Width: 480, Height: 270}, nil }

	wm, err := loadWatermark(probe, "assets/wm.gif", 100)
	require.NoError(t, err)
	assert.Equal(t, 178, wm.Width) // 177.8 rounded
	assert.Equal(t, 100, wm.Height)
	assert.Equal(t, []string{"-ignore_loop", "0", "-i", "assets/wm.gif"}, wm.InputArgs())

	wm, err = loadWatermark(probe, "wm.mp4", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"-stream_loop", "-1", "-i", "wm.mp4"}, wm.InputArgs())

	wm, err = loadWatermark(probe, "logo.PNG", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"-loop", "1", "-i", "logo.PNG"}, wm.InputArgs())

	_, err = loadWatermark(probe, "wm.gif", 0)
	assert.Error(t, err)
	_, err = loadWatermark(func(string) (probeResult, error) { return probeResult{}, errors.New("no such file") }, "wm.gif", 100)
	assert.Error(t, err)
}

func testWatermark() *WatermarkAsset {
	return &WatermarkAsset{Path: "wm.gif", Width: 176, Height: 100, kind: wmGIF}
}

func TestCompose(t *testing.T) {
	c := NewCompositor(jobs.Resolution{Width: 720, Height: 1280}, 200, testWatermark())
	src := jobs.SourceMedia{Path: "/work/source.mp4", Duration: 150}

	comp, err := c.Compose(src, jobs.SegmentSpec{Index: 2, Start: 120, End: 150})
	require.NoError(t, err)
	assert.Equal(t, 2, comp.Index)
	assert.Equal(t, 30, comp.Duration)
	assert.Equal(t, jobs.Resolution{Width: 720, Height: 1280}, comp.Size)
	assert.Equal(t, []string{"-ss", "120", "-t", "30", "-i", "/work/source.mp4", "-ignore_loop", "0", "-i", "wm.gif"}, comp.InputArgs())
	assert.Equal(t,
		"[0:v]scale=720:1280:force_original_aspect_ratio=decrease,pad=720:1280:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1[base];"+
			"[1:v]scale=176:100,format=rgba[wm];"+
			"[base][wm]overlay=x=(main_w-overlay_w)/2:y=main_h-200:shortest=1:format=auto[v]",
		comp.Filter)
}

func TestComposeRejectsBadInput(t *testing.T) {
	c := NewCompositor(jobs.Resolution{Width: 720, Height: 1280}, 200, testWatermark())
	src := jobs.SourceMedia{Path: "/work/source.mp4", Duration: 100}

	_, err := c.Compose(src, jobs.SegmentSpec{Index: 1, Start: 60, End: 120})
	assert.Error(t, err, "past source end")
	_, err = c.Compose(src, jobs.SegmentSpec{Index: 0, Start: 10, End: 10})
	assert.Error(t, err, "empty")
	_, err = c.Compose(jobs.SourceMedia{Duration: 100}, jobs.SegmentSpec{Start: 0, End: 60})
	assert.Error(t, err, "no path")

	c.Watermark = nil
	_, err = c.Compose(src, jobs.SegmentSpec{Start: 0, End: 60})
	assert.Error(t, err, "no watermark")
}

func testComposition() Composition {
	c := NewCompositor(jobs.Resolution{Width: 720, Height: 1280}, 200, testWatermark())
	comp, _ := c.Compose(jobs.SourceMedia{Path: "/work/source.mp4", Duration: 60}, jobs.SegmentSpec{Index: 0, Start: 0, End: 60})
	return comp
}

func TestEncoderArgs(t *testing.T) {
	e := &Encoder{Bin: "ffmpeg", VideoCodec: "libx264", AudioCodec: "aac", Preset: "veryfast", Threads: 4}
	args := e.Args(testComposition(), "/work/short_000.mp4.part")

	assert.Equal(t, "/work/short_000.mp4.part", args[len(args)-1])
	assert.Subset(t, args, []string{"-c:v", "libx264", "-c:a", "aac", "-threads", "4", "-preset", "veryfast", "[v]", "0:a?"})
	assert.Contains(t, args, "-filter_complex")
}

func TestEncodeSuccessRenames(t *testing.T) {
	bin := writeScript(t, `for last; do :; done
printf 'mp4-bytes' > "$last"
`)
	dest := filepath.Join(t.TempDir(), "short_000.mp4")
	e := &Encoder{Bin: bin, VideoCodec: "libx264", AudioCodec: "aac", Threads: 2}

	require.NoError(t, e.Encode(context.Background(), testComposition(), dest))
	assert.FileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
}

func TestEncodeFailureLeavesNothing(t *testing.T) {
	bin := writeScript(t, `for last; do :; done
printf 'partial' > "$last"
echo "Conversion failed!" >&2
exit 1
`)
	dest := filepath.Join(t.TempDir(), "short_001.mp4")
	e := &Encoder{Bin: bin, VideoCodec: "libx264", AudioCodec: "aac", Threads: 2}

	err := e.Encode(context.Background(), testComposition(), dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Conversion failed!")
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
}

func TestEncodeCancelled(t *testing.T) {
	bin := writeScript(t, "sleep 5\n")
	dest := filepath.Join(t.TempDir(), "short_000.mp4")
	e := &Encoder{Bin: bin, VideoCodec: "libx264", AudioCodec: "aac", Threads: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Encode(ctx, testComposition(), dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NoFileExists(t, dest)
}
