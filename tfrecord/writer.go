package tfrecord

import (
	"os"
	"strings"

	"github.com/vocprep/vocprep/errors"
)

// ErrOutputWrite marks failures writing a record file.
var ErrOutputWrite = errors.New("unable to write record file")

// Writer appends framed records to an output file. The file is staged under
// a .tmp suffix and only renamed to its final name on Close, so a failed or
// interrupted run never leaves a truncated record file behind. Each record
// is framed fully in memory and handed to the OS in a single write.
type Writer struct {
	path string
	tmp  string
	f    *os.File

	buf     []byte
	count   int
	written int64
}

// NewWriter creates the staging file for path.
func NewWriter(path string) (*Writer, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, errors.Wrapf(ErrOutputWrite, "creating %s: %v", tmp, err)
	}
	return &Writer{path: path, tmp: tmp, f: f}, nil
}

// Write appends one serialized message as a single framed record.
func (w *Writer) Write(data []byte) error {
	w.buf = appendRecord(w.buf[:0], data)
	n, err := w.f.Write(w.buf)
	w.written += int64(n)
	if err != nil {
		return errors.Wrapf(ErrOutputWrite, "%s: %v", w.path, err)
	}
	w.count++
	return nil
}

// WriteExample serializes the example and appends it as one record.
func (w *Writer) WriteExample(e *Example) error {
	return w.Write(e.Marshal())
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}

// BytesWritten returns the number of bytes written so far, framing included.
func (w *Writer) BytesWritten() int64 {
	return w.written
}

// Close flushes the staging file and renames it to its final name.
func (w *Writer) Close() error {
	if err := w.close(); err != nil {
		os.Remove(w.tmp)
		return errors.Wrapf(ErrOutputWrite, "%s: %v", w.tmp, err)
	}
	if err := os.Rename(w.tmp, strings.TrimSuffix(w.tmp, ".tmp")); err != nil {
		os.Remove(w.tmp)
		return errors.Wrapf(ErrOutputWrite, "unable to rename %s -> %s: %v", w.tmp, w.path, err)
	}
	return nil
}

func (w *Writer) close() (err error) {
	defer errors.Defer(&err, w.f.Close)
	return w.f.Sync()
}

// Abort discards the staging file. Safe to call after a failed Write.
func (w *Writer) Abort() {
	w.f.Close()
	os.Remove(w.tmp)
}
