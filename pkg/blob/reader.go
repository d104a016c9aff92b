package blob

import (
	"encoding/binary"
	"math"

	"github.com/bft-labs/mwdispatch/pkg/mwerr"
)

// Reader decodes a framed stream produced by Writer.
type Reader struct {
	buf  []byte
	pos  int
	ends []int // end offsets of the records being read, innermost last
	err  error
}

// NewReader creates a Reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Depth returns the number of records entered and not yet left.
func (r *Reader) Depth() int { return len(r.ends) }

// Remaining returns the number of unread bytes in the stream.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// limit is the offset reads must not cross.
func (r *Reader) limit() int {
	if len(r.ends) > 0 {
		// the end mark belongs to the record, not to its fields
		return r.ends[len(r.ends)-1] - 4
	}
	return len(r.buf)
}

func (r *Reader) fail(op, format string, args ...interface{}) {
	if r.err == nil {
		r.err = mwerr.Protocol(op, format, args...)
	}
}

func (r *Reader) take(op string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > r.limit() {
		r.fail(op, "malformed record length: need %d byte(s) at offset %d, record ends at %d", n, r.pos, r.limit())
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// header reads a record header without entering it.
// It returns the name, version and end offset.
func (r *Reader) header(op string) (string, int32, int) {
	b := r.take(op, 8)
	if b == nil {
		return "", 0, 0
	}
	if m := binary.LittleEndian.Uint32(b); m != Magic {
		r.fail(op, "bad record magic 0x%08x at offset %d", m, r.pos-8)
		return "", 0, 0
	}
	end := r.pos + int(binary.LittleEndian.Uint32(b[4:]))
	if end > r.limit() || end < r.pos+4 {
		r.fail(op, "malformed record length: record ends at %d beyond %d", end, r.limit())
		return "", 0, 0
	}
	name := r.String()
	version := r.Int32()
	return name, version, end
}

// PeekName returns the name of the next record without consuming it.
func (r *Reader) PeekName() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	pos := r.pos
	name, _, _ := r.header("peek")
	r.pos = pos
	if r.err != nil {
		return "", r.err
	}
	return name, nil
}

// GetStart enters the next record, which must be named name, and returns its version.
func (r *Reader) GetStart(name string) (int32, error) {
	if r.err != nil {
		return 0, r.err
	}
	got, version, end := r.header("get start")
	if r.err != nil {
		return 0, r.err
	}
	if got != name {
		r.fail("get start", "expected record %q, found %q", name, got)
		return 0, r.err
	}
	r.ends = append(r.ends, end)
	return version, nil
}

// GetStartVersion enters the next record and checks both its name and version.
func (r *Reader) GetStartVersion(name string, version int32) error {
	got, err := r.GetStart(name)
	if err != nil {
		return err
	}
	if got != version {
		r.fail("get start", "record %q has version %d, expected %d", name, got, version)
	}
	return r.err
}

// GetEnd leaves the innermost record.
// All of the record's fields must have been consumed.
func (r *Reader) GetEnd() error {
	if r.err != nil {
		return r.err
	}
	if len(r.ends) == 0 {
		r.fail("get end", "no open record")
		return r.err
	}
	end := r.ends[len(r.ends)-1]
	if r.pos != end-4 {
		r.fail("get end", "%d unread byte(s) before end of record", end-4-r.pos)
		return r.err
	}
	if m := binary.LittleEndian.Uint32(r.buf[r.pos:]); m != Magic {
		r.fail("get end", "bad end mark 0x%08x at offset %d", m, r.pos)
		return r.err
	}
	r.pos = end
	r.ends = r.ends[:len(r.ends)-1]
	return nil
}

// Uint32 reads a uint32.
func (r *Reader) Uint32() uint32 {
	b := r.take("get uint32", 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Int32 reads an int32.
func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

// Int64 reads an int64.
func (r *Reader) Int64() int64 {
	b := r.take("get int64", 8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

// Float64 reads a float64.
func (r *Reader) Float64() float64 {
	b := r.take("get float64", 8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// Bool reads a bool.
func (r *Reader) Bool() bool {
	b := r.take("get bool", 1)
	if b == nil {
		return false
	}
	switch b[0] {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail("get bool", "invalid bool byte %d", b[0])
		return false
	}
}

// String reads a length-prefixed string.
func (r *Reader) String() string {
	n := r.Uint32()
	b := r.take("get string", int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

// count reads a slice count and checks that at least minSize bytes per
// element remain in the record.
func (r *Reader) count(op string, minSize int) int {
	n := int(r.Uint32())
	if r.err != nil {
		return 0
	}
	if n*minSize > r.limit()-r.pos {
		r.fail(op, "malformed record length: %d element(s) do not fit", n)
		return 0
	}
	return n
}

// Int32s reads a counted int32 slice. An empty slice decodes as nil.
func (r *Reader) Int32s() []int32 {
	n := r.count("get int32s", 4)
	if n == 0 {
		return nil
	}
	vs := make([]int32, n)
	for i := range vs {
		vs[i] = r.Int32()
	}
	return vs
}

// Strings reads a counted string slice. An empty slice decodes as nil.
func (r *Reader) Strings() []string {
	n := r.count("get strings", 4)
	if n == 0 {
		return nil
	}
	vs := make([]string, n)
	for i := range vs {
		vs[i] = r.String()
	}
	return vs
}

// Bools reads a counted bool slice. An empty slice decodes as nil.
func (r *Reader) Bools() []bool {
	n := r.count("get bools", 1)
	if n == 0 {
		return nil
	}
	vs := make([]bool, n)
	for i := range vs {
		vs[i] = r.Bool()
	}
	return vs
}

// Float64s reads a counted float64 slice. An empty slice decodes as nil.
func (r *Reader) Float64s() []float64 {
	n := r.count("get float64s", 8)
	if n == 0 {
		return nil
	}
	vs := make([]float64, n)
	for i := range vs {
		vs[i] = r.Float64()
	}
	return vs
}
