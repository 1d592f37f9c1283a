package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names accepted by ByName.
const (
	NameJSON    = "json"
	NameCBOR    = "cbor"
	NameMsgpack = "msgpack"
)

// ByName builds the codec registered under name. When maxDecode > 0 the
// codec is wrapped in a Limit so oversized entries from a shared cache are
// rejected before decoding.
func ByName[V any](name string, maxDecode int) (Codec[V], error) {
	var inner Codec[V]
	switch name {
	case "", NameJSON:
		inner = JSON[V]{}
	case NameCBOR:
		c, err := NewCBOR[V](false)
		if err != nil {
			return nil, err
		}
		inner = c
	case NameMsgpack:
		inner = Msgpack[V]{}
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	if maxDecode > 0 {
		return Limit[V]{Inner: inner, MaxDecode: maxDecode}, nil
	}
	return inner, nil
}
