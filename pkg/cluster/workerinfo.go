package cluster

import (
	"github.com/bft-labs/mwdispatch/pkg/blob"
	"github.com/bft-labs/mwdispatch/pkg/mwerr"
)

// Work type codes advertised by workers.
const (
	WorkTypePrediffer int32 = 1
	WorkTypeSolver    int32 = 2
)

// WorkTypeName returns a readable name for a work type code.
func WorkTypeName(t int32) string {
	switch t {
	case WorkTypePrediffer:
		return "prediffer"
	case WorkTypeSolver:
		return "solver"
	default:
		return "unknown"
	}
}

const (
	workerInfoRecord  = "info"
	workerInfoVersion = 1
)

// WorkerInfo pairs a worker's host with the work types it can perform.
// The first entry of WorkTypes is the worker's primary type.
type WorkerInfo struct {
	HostName  string
	WorkTypes []int32
}

// PrimaryType returns the worker's primary work type, or 0 if none is set.
func (wi WorkerInfo) PrimaryType() int32 {
	if len(wi.WorkTypes) == 0 {
		return 0
	}
	return wi.WorkTypes[0]
}

// Supports reports whether the worker can perform work type t.
func (wi WorkerInfo) Supports(t int32) bool {
	for _, wt := range wi.WorkTypes {
		if wt == t {
			return true
		}
	}
	return false
}

// Encode writes the info record.
func (wi WorkerInfo) Encode(w *blob.Writer) {
	w.PutStart(workerInfoRecord, workerInfoVersion)
	w.PutString(wi.HostName)
	w.PutInt32s(wi.WorkTypes)
	w.PutEnd()
}

// DecodeWorkerInfo reads an info record.
func DecodeWorkerInfo(r *blob.Reader) (WorkerInfo, error) {
	if err := r.GetStartVersion(workerInfoRecord, workerInfoVersion); err != nil {
		return WorkerInfo{}, err
	}
	wi := WorkerInfo{
		HostName:  r.String(),
		WorkTypes: r.Int32s(),
	}
	if err := r.GetEnd(); err != nil {
		return WorkerInfo{}, err
	}
	return wi, nil
}

// MarshalWorkerInfo encodes wi as a standalone message.
func MarshalWorkerInfo(wi WorkerInfo) ([]byte, error) {
	w := blob.NewWriter()
	wi.Encode(w)
	return w.Finish()
}

// UnmarshalWorkerInfo decodes a message produced by MarshalWorkerInfo.
func UnmarshalWorkerInfo(buf []byte) (WorkerInfo, error) {
	r := blob.NewReader(buf)
	wi, err := DecodeWorkerInfo(r)
	if err != nil {
		return WorkerInfo{}, err
	}
	if r.Remaining() != 0 {
		return WorkerInfo{}, mwerr.Protocol("decode worker info", "%d trailing byte(s)", r.Remaining())
	}
	return wi, nil
}
