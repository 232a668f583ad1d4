package serial

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/lichen/internal/errors"
)

// Format is a wire encoding for envelopes.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown format %q: must be one of json, cbor, yaml", s))
}

// cborEnc uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// envelope always produces identical bytes.
var cborEnc cbor.EncMode

// cborDec decodes untyped maps as map[string]any instead of the CBOR
// default map[interface{}]interface{}.
var cborDec cbor.DecMode

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("serial: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("serial: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes env in format f.
func Marshal(env *Envelope, f Format) ([]byte, error) {
	m := env.Map()
	switch f {
	case FormatJSON, "":
		return json.Marshal(m)
	case FormatCBOR:
		return cborEnc.Marshal(m)
	case FormatYAML:
		return yaml.Marshal(m)
	}
	return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown format %q", f))
}

// Unmarshal decodes and validates an envelope in format f.
func Unmarshal(data []byte, f Format) (*Envelope, error) {
	var m map[string]any
	switch f {
	case FormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&m); err != nil {
			return nil, errors.NewMalformedEnvelope("", fmt.Sprintf("invalid JSON: %v", err))
		}
	case FormatCBOR:
		if err := cborDec.Unmarshal(data, &m); err != nil {
			return nil, errors.NewMalformedEnvelope("", fmt.Sprintf("invalid CBOR: %v", err))
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, errors.NewMalformedEnvelope("", fmt.Sprintf("invalid YAML: %v", err))
		}
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown format %q", f))
	}
	if m == nil {
		return nil, errors.NewMalformedEnvelope("", "empty document")
	}
	return Parse(m)
}
