package domain

import "io"

// LimitedWriter passes at most the configured number of bytes to the
// wrapped writer and silently discards the rest, counting what it dropped.
// Write never reports the cap as an error, so a chatty child process is
// never killed by a broken pipe. Used to bound captured checker output.
type LimitedWriter struct {
	w         io.Writer
	remaining int64
	dropped   int64
}

// LimitWriter wraps w with a byte cap.
func LimitWriter(w io.Writer, max int64) *LimitedWriter {
	return &LimitedWriter{w: w, remaining: max}
}

func (l *LimitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	if l.remaining <= 0 {
		l.dropped += int64(total)
		return total, nil
	}
	keep := int64(total)
	if keep > l.remaining {
		keep = l.remaining
	}
	if _, err := l.w.Write(p[:keep]); err != nil {
		return 0, err
	}
	l.remaining -= keep
	l.dropped += int64(total) - keep
	return total, nil
}

// Dropped reports how many bytes the cap discarded.
func (l *LimitedWriter) Dropped() int64 { return l.dropped }
