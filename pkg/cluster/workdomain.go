package cluster

import (
	"fmt"

	"github.com/bft-labs/mwdispatch/pkg/blob"
)

const (
	domainShapeRecord  = "DomainShape"
	domainShapeVersion = 1
	wdsRecord          = "WDS"
	wdsVersion         = 1
)

// DomainShape is the extent of one work domain.
type DomainShape struct {
	// FreqSize is the frequency extent in Hz.
	FreqSize float64 `toml:"freq_size" yaml:"freq_size"`
	// TimeSize is the time extent in seconds.
	TimeSize float64 `toml:"time_size" yaml:"time_size"`
}

// Encode writes the DomainShape record.
func (ds DomainShape) Encode(w *blob.Writer) {
	w.PutStart(domainShapeRecord, domainShapeVersion)
	w.PutFloat64(ds.FreqSize)
	w.PutFloat64(ds.TimeSize)
	w.PutEnd()
}

// DecodeDomainShape reads a DomainShape record.
func DecodeDomainShape(r *blob.Reader) (DomainShape, error) {
	if err := r.GetStartVersion(domainShapeRecord, domainShapeVersion); err != nil {
		return DomainShape{}, err
	}
	ds := DomainShape{FreqSize: r.Float64(), TimeSize: r.Float64()}
	return ds, r.GetEnd()
}

// String returns the shape as "freq x time".
func (ds DomainShape) String() string {
	return fmt.Sprintf("%gHz x %gs", ds.FreqSize, ds.TimeSize)
}

// Interval is a closed [Start, End] range.
type Interval struct {
	Start float64 `toml:"start" yaml:"start"`
	End   float64 `toml:"end" yaml:"end"`
}

// Width returns End - Start.
func (iv Interval) Width() float64 { return iv.End - iv.Start }

// WorkDomainSpec describes the data a unit of work operates on.
type WorkDomainSpec struct {
	InColumn     string      `toml:"in_column" yaml:"in_column"`
	AntNrs       []int32     `toml:"ant_nrs" yaml:"ant_nrs"`
	AntNames     []string    `toml:"ant_names" yaml:"ant_names"`
	AutoCorr     bool        `toml:"auto_corr" yaml:"auto_corr"`
	Corr         []bool      `toml:"corr" yaml:"corr"`
	Shape        DomainShape `toml:"shape" yaml:"shape"`
	FreqInterval Interval    `toml:"freq_interval" yaml:"freq_interval"`
	TimeInterval Interval    `toml:"time_interval" yaml:"time_interval"`
}

// Validate checks that the intervals and shape are usable.
func (s WorkDomainSpec) Validate() error {
	if s.InColumn == "" {
		return fmt.Errorf("work domain: in_column is required")
	}
	if s.Shape.FreqSize <= 0 || s.Shape.TimeSize <= 0 {
		return fmt.Errorf("work domain: shape must be positive, got %s", s.Shape)
	}
	if s.FreqInterval.End < s.FreqInterval.Start {
		return fmt.Errorf("work domain: freq interval end %g before start %g", s.FreqInterval.End, s.FreqInterval.Start)
	}
	if s.TimeInterval.End < s.TimeInterval.Start {
		return fmt.Errorf("work domain: time interval end %g before start %g", s.TimeInterval.End, s.TimeInterval.Start)
	}
	return nil
}

// Encode writes the WDS record.
func (s WorkDomainSpec) Encode(w *blob.Writer) {
	w.PutStart(wdsRecord, wdsVersion)
	w.PutString(s.InColumn)
	w.PutInt32s(s.AntNrs)
	w.PutStrings(s.AntNames)
	w.PutBool(s.AutoCorr)
	w.PutBools(s.Corr)
	s.Shape.Encode(w)
	w.PutFloat64(s.FreqInterval.Start)
	w.PutFloat64(s.FreqInterval.End)
	w.PutFloat64(s.TimeInterval.Start)
	w.PutFloat64(s.TimeInterval.End)
	w.PutEnd()
}

// DecodeWorkDomainSpec reads a WDS record.
func DecodeWorkDomainSpec(r *blob.Reader) (WorkDomainSpec, error) {
	if err := r.GetStartVersion(wdsRecord, wdsVersion); err != nil {
		return WorkDomainSpec{}, err
	}
	var s WorkDomainSpec
	s.InColumn = r.String()
	s.AntNrs = r.Int32s()
	s.AntNames = r.Strings()
	s.AutoCorr = r.Bool()
	s.Corr = r.Bools()
	shape, err := DecodeDomainShape(r)
	if err != nil {
		return WorkDomainSpec{}, err
	}
	s.Shape = shape
	s.FreqInterval = Interval{Start: r.Float64(), End: r.Float64()}
	s.TimeInterval = Interval{Start: r.Float64(), End: r.Float64()}
	if err := r.GetEnd(); err != nil {
		return WorkDomainSpec{}, err
	}
	return s, nil
}
