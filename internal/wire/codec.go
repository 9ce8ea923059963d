package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Codec marshals Empty and IntArray on the wire. It reports itself as
// "proto" so the content subtype matches servers built from the .proto file.
type Codec struct{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *IntArray:
		return m.Marshal(), nil
	case *Empty:
		return nil, nil
	default:
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *IntArray:
		return m.Unmarshal(data)
	case *Empty:
		// Empty carries no fields but must still be well-formed.
		for len(data) > 0 {
			num, typ, n := protowire.ConsumeTag(data)
			if n < 0 {
				return malformed(protowire.ParseError(n))
			}
			data = data[n:]
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return malformed(protowire.ParseError(n))
			}
			data = data[n:]
		}
		return nil
	default:
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
}
