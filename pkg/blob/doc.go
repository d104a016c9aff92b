// Package blob implements the framed record stream used on the master-worker wire.
//
// A stream is a sequence of named, versioned, length-delimited records.
// Records nest: a record body may contain further records.
//
// # Layout
//
// Every record is written as
//
//	magic    uint32   0xbebebebe
//	length   uint32   bytes following this field, end mark included
//	name     string   uint32 length + bytes
//	version  int32
//	fields   ...
//	end      uint32   0xbebebebe
//
// All integers are little endian. Slices are a uint32 count followed by the
// elements.
//
// # Usage
//
//	w := blob.NewWriter()
//	w.PutStart("info", 1)
//	w.PutString(host)
//	w.PutInt32s(types)
//	w.PutEnd()
//	buf, err := w.Finish()
//
//	r := blob.NewReader(buf)
//	if err := r.GetStartVersion("info", 1); err != nil { ... }
//	host := r.String()
//	types := r.Int32s()
//	err = r.GetEnd()
//
// Readers and writers keep the first error and turn later calls into
// no-ops, so a decoder checks Err (or the GetEnd result) once at the end.
// Every decoding failure is an mwerr protocol error.
package blob
