package toolregistry

import (
	"bytes"
	"encoding/json"
	"io"
)

// mapResource re-encodes a parsed JSON-Schema map back to JSON so it can be
// handed to jsonschema.Compiler.AddResource, which wants an io.Reader.
func mapResource(parameters map[string]interface{}) io.Reader {
	data, err := json.Marshal(parameters)
	if err != nil {
		return bytes.NewReader([]byte("{}"))
	}
	return bytes.NewReader(data)
}

// toJSONValue normalizes a Go value through a JSON round trip so jsonschema
// sees the same representation it would after decoding a wire payload
// (float64 numbers, map[string]interface{} objects).
func toJSONValue(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
