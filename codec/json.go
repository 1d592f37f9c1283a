package codec

import "encoding/json"

// JSON is the default codec. Cached list results, records and exports are
// plain structs and maps, so encoding/json round-trips them without tags
// beyond the ones the HTTP layer already needs.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
