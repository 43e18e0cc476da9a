package storage

import (
	"encoding/binary"
	"encoding/json"
	"math"
)

// marshalJSON encodes v as a JSON text column. nil maps and slices encode
// as their empty form so columns stay NOT NULL.
func marshalJSON(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalMap(s string) map[string]any {
	if s == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

func unmarshalMapPtr(s *string) map[string]any {
	if s == nil {
		return nil
	}
	return unmarshalMap(*s)
}

func unmarshalFloatMap(s string) map[string]float64 {
	if s == "" {
		return map[string]float64{}
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return map[string]float64{}
	}
	return m
}

// unmarshalInto decodes a JSON text column into dst.
func unmarshalInto(s string, dst any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// encodeVector packs an embedding as little-endian float32 bytes, portable
// across both backends' BLOB columns.
func encodeVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
