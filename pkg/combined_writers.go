package pkg

import (
	"io"

	"go.uber.org/multierr"
)

// CombinedWriter fans out each write to all writers, e.g. stdout and a rotated log file
type CombinedWriter struct {
	Writers []io.Writer
}

func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{
		Writers: append([]io.Writer{}, writers...),
	}
}

// Write keeps going past failing writers. n is the most any single writer took,
// so it never exceeds len(p); err combines all writer errors.
func (cw *CombinedWriter) Write(p []byte) (n int, err error) {
	for _, w := range cw.Writers {
		written, werr := w.Write(p)
		if werr != nil {
			err = multierr.Append(err, werr)
		}
		n = max(n, written)
	}
	return n, err
}
