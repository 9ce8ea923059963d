// Package wire holds the GlobeSort messages and a gRPC codec that encodes
// them in protobuf wire format without generated code.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	pkgerrors "globesort/pkg/errors"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "globesort.GlobeSort"

	PingMethod         = "/" + ServiceName + "/Ping"
	SortIntegersMethod = "/" + ServiceName + "/SortIntegers"

	valuesField protowire.Number = 1
)

// Empty is the payload of a liveness probe in both directions.
type Empty struct{}

// IntArray is `message IntArray { repeated int32 values = 1; }`.
type IntArray struct {
	Values []int32
}

// Marshal encodes the array as a single packed field.
func (m *IntArray) Marshal() []byte {
	if len(m.Values) == 0 {
		return nil
	}
	size := 0
	for _, v := range m.Values {
		size += protowire.SizeVarint(uint64(int64(v)))
	}
	b := make([]byte, 0, protowire.SizeTag(valuesField)+protowire.SizeVarint(uint64(size))+size)
	b = protowire.AppendTag(b, valuesField, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(size))
	for _, v := range m.Values {
		b = protowire.AppendVarint(b, uint64(int64(v)))
	}
	return b
}

// Unmarshal decodes packed and unpacked encodings of the values field and
// skips unknown fields.
func (m *IntArray) Unmarshal(b []byte) error {
	m.Values = m.Values[:0]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == valuesField && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return malformed(protowire.ParseError(n))
			}
			b = b[n:]
			for len(packed) > 0 {
				v, n := protowire.ConsumeVarint(packed)
				if n < 0 {
					return malformed(protowire.ParseError(n))
				}
				packed = packed[n:]
				m.Values = append(m.Values, int32(v))
			}
		case num == valuesField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return malformed(protowire.ParseError(n))
			}
			b = b[n:]
			m.Values = append(m.Values, int32(v))
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return malformed(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", pkgerrors.ErrMalformedMessage, err)
}
