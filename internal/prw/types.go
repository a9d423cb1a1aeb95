// Package prw provides Prometheus Remote Write protocol support.
package prw

import "sort"

// WriteRequest represents a Prometheus remote write request (PRW 1.0).
type WriteRequest struct {
	Timeseries []TimeSeries
}

// TimeSeries represents a single time series with labels and data points.
type TimeSeries struct {
	Labels  []Label
	Samples []Sample
}

// Label is a key-value pair identifying a time series.
type Label struct {
	Name  string
	Value string
}

// Sample represents a single data point.
type Sample struct {
	Value     float64
	Timestamp int64 // Unix timestamp in milliseconds
}

// MetricName returns the __name__ label value from a TimeSeries.
func (ts *TimeSeries) MetricName() string {
	for _, l := range ts.Labels {
		if l.Name == "__name__" {
			return l.Value
		}
	}
	return ""
}

// GetLabelValue returns the value of a label by name.
func (ts *TimeSeries) GetLabelValue(name string) string {
	for _, l := range ts.Labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

// TotalSamples returns the total number of samples in the WriteRequest.
func (req *WriteRequest) TotalSamples() int {
	count := 0
	for i := range req.Timeseries {
		count += len(req.Timeseries[i].Samples)
	}
	return count
}

// TotalTimeseries returns the number of time series in the WriteRequest.
func (req *WriteRequest) TotalTimeseries() int {
	return len(req.Timeseries)
}

// Clone creates a deep copy of the WriteRequest.
func (req *WriteRequest) Clone() *WriteRequest {
	if req == nil {
		return nil
	}
	clone := &WriteRequest{
		Timeseries: make([]TimeSeries, len(req.Timeseries)),
	}
	for i := range req.Timeseries {
		clone.Timeseries[i] = req.Timeseries[i].Clone()
	}
	return clone
}

// Clone creates a deep copy of the TimeSeries.
func (ts TimeSeries) Clone() TimeSeries {
	clone := TimeSeries{
		Labels:  make([]Label, len(ts.Labels)),
		Samples: make([]Sample, len(ts.Samples)),
	}
	copy(clone.Labels, ts.Labels)
	copy(clone.Samples, ts.Samples)
	return clone
}

// SortLabels sorts the labels by name for consistent ordering. Remote write
// requires sorted labels within a series.
func (ts *TimeSeries) SortLabels() {
	sort.Slice(ts.Labels, func(i, j int) bool {
		return ts.Labels[i].Name < ts.Labels[j].Name
	})
}

// LabelsSorted reports whether the labels are already in name order.
func (ts *TimeSeries) LabelsSorted() bool {
	return sort.SliceIsSorted(ts.Labels, func(i, j int) bool {
		return ts.Labels[i].Name < ts.Labels[j].Name
	})
}

// LabelsHash returns a hash of the labels for use in maps.
// Labels should be sorted before calling this function for consistent results.
func (ts *TimeSeries) LabelsHash() uint64 {
	// Simple FNV-1a hash
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	hash := uint64(offset64)
	for _, l := range ts.Labels {
		for i := 0; i < len(l.Name); i++ {
			hash ^= uint64(l.Name[i])
			hash *= prime64
		}
		hash ^= uint64(0xFF) // separator
		hash *= prime64
		for i := 0; i < len(l.Value); i++ {
			hash ^= uint64(l.Value[i])
			hash *= prime64
		}
		hash ^= uint64(0xFF) // separator
		hash *= prime64
	}
	return hash
}
