package logx

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"
)

// LineWriter turns stream output into per-line zerolog events at a given level.
type LineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
	tap    func(line string)
}

func NewLineWriter(base zerolog.Logger, fields map[string]string, level zerolog.Level) *LineWriter {
	w := base.With()
	for k, v := range fields {
		w = w.Str(k, v)
	}
	return &LineWriter{logger: w.Logger(), level: level}
}

// Tap registers fn to see every line before it is logged.
func (lw *LineWriter) Tap(fn func(line string)) *LineWriter {
	lw.tap = fn
	return lw
}

// Pipe consumes r until EOF. Lines longer than the scanner buffer are split.
func (lw *LineWriter) Pipe(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if lw.tap != nil {
			lw.tap(line)
		}
		if line == "" {
			continue
		}
		switch lw.level {
		case zerolog.DebugLevel:
			lw.logger.Debug().Msg(line)
		case zerolog.ErrorLevel:
			lw.logger.Error().Msg(line)
		default:
			lw.logger.Info().Msg(line)
		}
	}
}
