// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"bytes"
	"encoding/json"
)

// Raw options that are not directly unmarshalled when loading the config.
// Usage: call Unmarshal to unmarshal the options into a struct.
type RawOpts struct {
	raw json.RawMessage
}

// Create a new RawOpts instance with the given json string.
func NewRawOpts(rawJSON string) RawOpts {
	return NewRawOptsBytes([]byte(rawJSON))
}

// Create a new RawOpts instance with the given json bytes.
func NewRawOptsBytes(rawJSON []byte) RawOpts {
	return RawOpts{raw: bytes.Clone(rawJSON)}
}

// Unmarshal the options into a struct. Empty options leave v untouched.
func (o RawOpts) Unmarshal(v any) error {
	trimmed := bytes.TrimSpace(o.raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	// Disallow unknown fields to catch typos in the step options.
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Postpone the unmarshal by keeping the raw json.
func (o *RawOpts) UnmarshalJSON(data []byte) error {
	o.raw = bytes.Clone(data)
	return nil
}

func (o RawOpts) MarshalJSON() ([]byte, error) {
	if len(o.raw) == 0 {
		return []byte("null"), nil
	}
	return o.raw, nil
}

// So that the options can be logged in a readable way.
func (o RawOpts) String() string {
	return string(o.raw)
}

// Mixin that adds the ability to load options from a json map.
// Usage: type StructUsingOpts struct { conf.JsonOpts[MyOpts] }
type JsonOpts[Options any] struct {
	// Options loaded from a json config using the Load method.
	Options Options
}

// Set the options contained in the opts json map.
func (s *JsonOpts[Options]) Load(opts RawOpts) error {
	var o Options
	if err := opts.Unmarshal(&o); err != nil {
		return err
	}
	s.Options = o
	return nil
}
