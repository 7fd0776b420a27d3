// Package jsoncodec is the JSON codec shared by frame payloads and config
// files. It uses sonic in its encoding/json compatible mode.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Decode reads a single JSON value from r into v. Unknown fields are
// rejected so typos in config files surface at startup.
func Decode(r io.Reader, v any) error {
	dec := api.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func Encode(w io.Writer, v any) error {
	return api.NewEncoder(w).Encode(v)
}
