package prw

import (
	"encoding/binary"
	"fmt"
	"math"
)

// This file provides protobuf encoding/decoding for PRW wire format.
// We use manual encoding to avoid external dependencies on prometheus/prompb.
// The wire format is compatible with prometheus/prompb.

// Protobuf wire types
const (
	wireVarint      = 0
	wireFixed64     = 1
	wireLengthDelim = 2
	wireFixed32     = 5
)

// Protobuf field numbers for WriteRequest
const (
	fieldWriteRequestTimeseries = 1
)

// Protobuf field numbers for TimeSeries
const (
	fieldTimeSeriesLabels  = 1
	fieldTimeSeriesSamples = 2
)

// Protobuf field numbers for Label
const (
	fieldLabelName  = 1
	fieldLabelValue = 2
)

// Protobuf field numbers for Sample
const (
	fieldSampleValue     = 1
	fieldSampleTimestamp = 2
)

// UnmarshalWriteRequest deserializes a WriteRequest from protobuf wire format bytes.
func UnmarshalWriteRequest(data []byte) (*WriteRequest, error) {
	var req WriteRequest
	if err := req.Unmarshal(data); err != nil {
		return nil, err
	}
	return &req, nil
}

// Marshal encodes a WriteRequest to protobuf wire format.
func (req *WriteRequest) Marshal() ([]byte, error) {
	size := req.estimateSize()
	buf := make([]byte, 0, size)

	for i := range req.Timeseries {
		tsBytes, err := req.Timeseries[i].marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal timeseries %d: %w", i, err)
		}
		buf = appendTagLengthDelim(buf, fieldWriteRequestTimeseries, tsBytes)
	}

	return buf, nil
}

// Unmarshal decodes a WriteRequest from protobuf wire format. Fields beyond
// the PRW 1.0 sample surface (exemplars, native histograms, metadata) are
// skipped, not preserved.
func (req *WriteRequest) Unmarshal(data []byte) error {
	req.Timeseries = nil

	for len(data) > 0 {
		fieldNum, wireType, n := consumeTag(data)
		if n < 0 {
			return fmt.Errorf("invalid tag")
		}
		data = data[n:]

		switch fieldNum {
		case fieldWriteRequestTimeseries:
			if wireType != wireLengthDelim {
				return fmt.Errorf("invalid wire type for timeseries: %d", wireType)
			}
			tsData, n := consumeBytes(data)
			if n < 0 {
				return fmt.Errorf("invalid timeseries length")
			}
			data = data[n:]

			var ts TimeSeries
			if err := ts.unmarshal(tsData); err != nil {
				return fmt.Errorf("failed to unmarshal timeseries: %w", err)
			}
			req.Timeseries = append(req.Timeseries, ts)

		default:
			// Skip unknown fields
			n, err := skipField(data, wireType)
			if err != nil {
				return fmt.Errorf("failed to skip unknown field %d: %w", fieldNum, err)
			}
			data = data[n:]
		}
	}

	return nil
}

func (req *WriteRequest) estimateSize() int {
	size := 0
	for i := range req.Timeseries {
		size += 2 + req.Timeseries[i].estimateSize() // tag + length + data
	}
	return size
}

// EstimateSize returns an estimate of the marshaled size in bytes.
// This is useful for tracking uncompressed payload sizes.
func (req *WriteRequest) EstimateSize() int {
	return req.estimateSize()
}

func (ts *TimeSeries) marshal() ([]byte, error) { //nolint:unparam // error kept for API consistency
	buf := make([]byte, 0, ts.estimateSize())

	for i := range ts.Labels {
		labelBytes := ts.Labels[i].marshal()
		buf = appendTagLengthDelim(buf, fieldTimeSeriesLabels, labelBytes)
	}

	for i := range ts.Samples {
		sampleBytes := ts.Samples[i].marshal()
		buf = appendTagLengthDelim(buf, fieldTimeSeriesSamples, sampleBytes)
	}

	return buf, nil
}

func (ts *TimeSeries) unmarshal(data []byte) error {
	ts.Labels = nil
	ts.Samples = nil

	for len(data) > 0 {
		fieldNum, wireType, n := consumeTag(data)
		if n < 0 {
			return fmt.Errorf("invalid tag")
		}
		data = data[n:]

		switch fieldNum {
		case fieldTimeSeriesLabels:
			if wireType != wireLengthDelim {
				return fmt.Errorf("invalid wire type for labels: %d", wireType)
			}
			labelData, n := consumeBytes(data)
			if n < 0 {
				return fmt.Errorf("invalid label length")
			}
			data = data[n:]

			var l Label
			if err := l.unmarshal(labelData); err != nil {
				return fmt.Errorf("failed to unmarshal label: %w", err)
			}
			ts.Labels = append(ts.Labels, l)

		case fieldTimeSeriesSamples:
			if wireType != wireLengthDelim {
				return fmt.Errorf("invalid wire type for sample: %d", wireType)
			}
			sampleData, n := consumeBytes(data)
			if n < 0 {
				return fmt.Errorf("invalid sample length")
			}
			data = data[n:]

			var s Sample
			if err := s.unmarshal(sampleData); err != nil {
				return fmt.Errorf("failed to unmarshal sample: %w", err)
			}
			ts.Samples = append(ts.Samples, s)

		default:
			n, err := skipField(data, wireType)
			if err != nil {
				return fmt.Errorf("failed to skip unknown field %d: %w", fieldNum, err)
			}
			data = data[n:]
		}
	}

	return nil
}

func (ts *TimeSeries) estimateSize() int {
	size := 0
	for i := range ts.Labels {
		size += 2 + ts.Labels[i].estimateSize()
	}
	for i := range ts.Samples {
		size += 2 + ts.Samples[i].estimateSize()
	}
	return size
}

func (l *Label) marshal() []byte {
	buf := make([]byte, 0, l.estimateSize())
	buf = appendTagLengthDelim(buf, fieldLabelName, []byte(l.Name))
	buf = appendTagLengthDelim(buf, fieldLabelValue, []byte(l.Value))
	return buf
}

func (l *Label) unmarshal(data []byte) error {
	l.Name = ""
	l.Value = ""

	for len(data) > 0 {
		fieldNum, wireType, n := consumeTag(data)
		if n < 0 {
			return fmt.Errorf("invalid tag")
		}
		data = data[n:]

		switch fieldNum {
		case fieldLabelName:
			if wireType != wireLengthDelim {
				return fmt.Errorf("invalid wire type for name: %d", wireType)
			}
			nameBytes, n := consumeBytes(data)
			if n < 0 {
				return fmt.Errorf("invalid name length")
			}
			data = data[n:]
			l.Name = string(nameBytes)

		case fieldLabelValue:
			if wireType != wireLengthDelim {
				return fmt.Errorf("invalid wire type for value: %d", wireType)
			}
			valueBytes, n := consumeBytes(data)
			if n < 0 {
				return fmt.Errorf("invalid value length")
			}
			data = data[n:]
			l.Value = string(valueBytes)

		default:
			n, err := skipField(data, wireType)
			if err != nil {
				return fmt.Errorf("failed to skip unknown field %d: %w", fieldNum, err)
			}
			data = data[n:]
		}
	}

	return nil
}

func (l *Label) estimateSize() int {
	return 2 + len(l.Name) + 2 + len(l.Value)
}

func (s *Sample) marshal() []byte {
	buf := make([]byte, 0, s.estimateSize())
	buf = appendTagFixed64(buf, fieldSampleValue, math.Float64bits(s.Value))
	buf = appendTagVarint(buf, fieldSampleTimestamp, uint64(s.Timestamp))
	return buf
}

func (s *Sample) unmarshal(data []byte) error {
	s.Value = 0
	s.Timestamp = 0

	for len(data) > 0 {
		fieldNum, wireType, n := consumeTag(data)
		if n < 0 {
			return fmt.Errorf("invalid tag")
		}
		data = data[n:]

		switch fieldNum {
		case fieldSampleValue:
			if wireType != wireFixed64 {
				return fmt.Errorf("invalid wire type for value: %d", wireType)
			}
			if len(data) < 8 {
				return fmt.Errorf("insufficient data for fixed64")
			}
			s.Value = math.Float64frombits(binary.LittleEndian.Uint64(data[:8]))
			data = data[8:]

		case fieldSampleTimestamp:
			if wireType != wireVarint {
				return fmt.Errorf("invalid wire type for timestamp: %d", wireType)
			}
			v, n := consumeVarint(data)
			if n < 0 {
				return fmt.Errorf("invalid timestamp varint")
			}
			s.Timestamp = int64(v)
			data = data[n:]

		default:
			n, err := skipField(data, wireType)
			if err != nil {
				return fmt.Errorf("failed to skip unknown field %d: %w", fieldNum, err)
			}
			data = data[n:]
		}
	}

	return nil
}

func (s *Sample) estimateSize() int {
	return 1 + 8 + 1 + 10 // tag + fixed64 + tag + varint (max 10 bytes)
}

// Helper functions for protobuf encoding/decoding

func appendTagVarint(buf []byte, fieldNum int, v uint64) []byte {
	tag := uint64(fieldNum<<3) | wireVarint
	buf = appendVarint(buf, tag)
	buf = appendVarint(buf, v)
	return buf
}

func appendTagFixed64(buf []byte, fieldNum int, v uint64) []byte {
	tag := uint64(fieldNum<<3) | wireFixed64
	buf = appendVarint(buf, tag)
	buf = append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	return buf
}

func appendTagLengthDelim(buf []byte, fieldNum int, data []byte) []byte {
	tag := uint64(fieldNum<<3) | wireLengthDelim
	buf = appendVarint(buf, tag)
	buf = appendVarint(buf, uint64(len(data)))
	buf = append(buf, data...)
	return buf
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	buf = append(buf, byte(v))
	return buf
}

func consumeTag(data []byte) (fieldNum int, wireType int, n int) {
	v, n := consumeVarint(data)
	if n < 0 {
		return 0, 0, -1
	}
	return int(v >> 3), int(v & 0x7), n
}

func consumeVarint(data []byte) (v uint64, n int) {
	for i := 0; i < len(data) && i < 10; i++ {
		b := data[i]
		v |= uint64(b&0x7F) << (7 * i)
		if b < 0x80 {
			return v, i + 1
		}
	}
	return 0, -1
}

func consumeBytes(data []byte) (b []byte, n int) {
	length, vn := consumeVarint(data)
	if vn < 0 {
		return nil, -1
	}
	if uint64(len(data)-vn) < length {
		return nil, -1
	}
	return data[vn : vn+int(length)], vn + int(length)
}

func skipField(data []byte, wireType int) (n int, err error) {
	switch wireType {
	case wireVarint:
		_, n := consumeVarint(data)
		if n < 0 {
			return 0, fmt.Errorf("invalid varint")
		}
		return n, nil
	case wireFixed64:
		if len(data) < 8 {
			return 0, fmt.Errorf("insufficient data for fixed64")
		}
		return 8, nil
	case wireLengthDelim:
		length, vn := consumeVarint(data)
		if vn < 0 {
			return 0, fmt.Errorf("invalid length")
		}
		if uint64(len(data)-vn) < length {
			return 0, fmt.Errorf("truncated field")
		}
		return vn + int(length), nil
	case wireFixed32:
		if len(data) < 4 {
			return 0, fmt.Errorf("insufficient data for fixed32")
		}
		return 4, nil
	default:
		return 0, fmt.Errorf("unknown wire type: %d", wireType)
	}
}
