package blob

import (
	"encoding/binary"
	"math"

	"github.com/bft-labs/mwdispatch/pkg/mwerr"
)

// Magic opens and closes every record.
const Magic uint32 = 0xbebebebe

// Writer builds a framed stream in memory.
type Writer struct {
	buf  []byte
	open []int // offsets of the length fields of unfinished records
	err  error
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// PutStart opens a record with the given name and version.
func (w *Writer) PutStart(name string, version int32) {
	if w.err != nil {
		return
	}
	w.putUint32(Magic)
	w.open = append(w.open, len(w.buf))
	w.putUint32(0) // patched by PutEnd
	w.PutString(name)
	w.PutInt32(version)
}

// PutEnd closes the innermost open record.
func (w *Writer) PutEnd() {
	if w.err != nil {
		return
	}
	if len(w.open) == 0 {
		w.err = mwerr.Protocol("put end", "no open record")
		return
	}
	w.putUint32(Magic)
	at := w.open[len(w.open)-1]
	w.open = w.open[:len(w.open)-1]
	binary.LittleEndian.PutUint32(w.buf[at:], uint32(len(w.buf)-at-4))
}

// Depth returns the number of unfinished records.
func (w *Writer) Depth() int { return len(w.open) }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Finish returns the encoded stream.
// It fails if a record is still open.
func (w *Writer) Finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if len(w.open) != 0 {
		return nil, mwerr.Protocol("finish", "%d record(s) still open", len(w.open))
	}
	return w.buf, nil
}

func (w *Writer) putUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// PutUint32 appends v.
func (w *Writer) PutUint32(v uint32) {
	if w.err == nil {
		w.putUint32(v)
	}
}

// PutInt32 appends v.
func (w *Writer) PutInt32(v int32) {
	if w.err == nil {
		w.putUint32(uint32(v))
	}
}

// PutInt64 appends v.
func (w *Writer) PutInt64(v int64) {
	if w.err == nil {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
	}
}

// PutFloat64 appends v.
func (w *Writer) PutFloat64(v float64) {
	if w.err == nil {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
	}
}

// PutBool appends v as a single byte.
func (w *Writer) PutBool(v bool) {
	if w.err != nil {
		return
	}
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// PutString appends a length-prefixed string.
func (w *Writer) PutString(s string) {
	if w.err != nil {
		return
	}
	w.putUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// PutInt32s appends a counted int32 slice.
func (w *Writer) PutInt32s(vs []int32) {
	w.PutUint32(uint32(len(vs)))
	for _, v := range vs {
		w.PutInt32(v)
	}
}

// PutStrings appends a counted string slice.
func (w *Writer) PutStrings(vs []string) {
	w.PutUint32(uint32(len(vs)))
	for _, v := range vs {
		w.PutString(v)
	}
}

// PutBools appends a counted bool slice.
func (w *Writer) PutBools(vs []bool) {
	w.PutUint32(uint32(len(vs)))
	for _, v := range vs {
		w.PutBool(v)
	}
}

// PutFloat64s appends a counted float64 slice.
func (w *Writer) PutFloat64s(vs []float64) {
	w.PutUint32(uint32(len(vs)))
	for _, v := range vs {
		w.PutFloat64(v)
	}
}
