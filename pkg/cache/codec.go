package cache

import (
	"encoding/json"
)

// Codec round-trips typed values to and from the cache's string wire format.
type Codec interface {
	Encode(v any) (string, error)
	Decode(s string, dest any) error
}

// JSONCodec is the default codec. Strings and byte slices pass through
// unencoded so raw payloads stay readable (and incrementable) server-side;
// everything else is JSON.
type JSONCodec struct{}

// Encode serializes v to the cache wire format.
func (JSONCodec) Encode(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// Decode deserializes the stored string into dest.
func (JSONCodec) Decode(s string, dest any) error {
	switch dest := dest.(type) {
	case *string:
		*dest = s
		return nil
	case *[]byte:
		*dest = []byte(s)
		return nil
	default:
		return json.Unmarshal([]byte(s), dest)
	}
}
