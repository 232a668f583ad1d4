package serial

import (
	"os"
	"sort"
	"strconv"

	"github.com/hpungsan/lichen/internal/errors"
)

// Decoder reconstructs live values from envelopes.
type Decoder struct {
	registry      *Registry
	secrets       map[string]string
	secretsEnv    bool
	collaborators map[string]any
}

// DecodeOption configures a Decoder.
type DecodeOption func(*Decoder)

// WithSecrets supplies values for secret envelopes, keyed by secret name.
func WithSecrets(secrets map[string]string) DecodeOption {
	return func(d *Decoder) {
		for k, v := range secrets {
			d.secrets[k] = v
		}
	}
}

// WithSecretsFromEnv resolves secrets not given by WithSecrets from
// environment variables of the same name.
func WithSecretsFromEnv() DecodeOption {
	return func(d *Decoder) { d.secretsEnv = true }
}

// WithCollaborator binds a live value to a type path. A not_implemented
// envelope with that path decodes to value instead of failing, which lets
// callers re-attach collaborators that could only be encoded for display.
func WithCollaborator(path []string, value any) DecodeOption {
	return func(d *Decoder) { d.collaborators[pathKey(path)] = value }
}

// NewDecoder returns a decoder bound to reg.
func NewDecoder(reg *Registry, opts ...DecodeOption) *Decoder {
	d := &Decoder{
		registry:      reg,
		secrets:       make(map[string]string),
		collaborators: make(map[string]any),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DecodeMap parses a wire map and decodes it.
func (d *Decoder) DecodeMap(m map[string]any) (any, error) {
	env, err := Parse(m)
	if err != nil {
		return nil, err
	}
	return d.Decode(env)
}

// Decode reconstructs the value env describes. Constructor arguments and
// obj fields are decoded depth first; obj fields are applied in key order
// after construction.
func (d *Decoder) Decode(env *Envelope) (any, error) {
	if env == nil {
		return nil, errors.NewMalformedEnvelope("", "nil envelope")
	}
	if env.FormatMarker != FormatMarker {
		return nil, errors.NewMalformedEnvelope(keyFormatMarker, "unsupported format marker")
	}

	switch env.Kind {
	case KindSecret:
		return d.secret(env)
	case KindNotImplemented:
		if v, ok := d.collaborators[pathKey(env.TypePath)]; ok {
			return v, nil
		}
		return nil, errors.NewNotReconstructable(env.TypePath, env.Repr)
	case KindConstructor:
		return d.construct(env)
	default:
		return nil, errors.NewMalformedEnvelope(keyKind, "unknown kind "+string(env.Kind))
	}
}

func (d *Decoder) secret(env *Envelope) (any, error) {
	if len(env.TypePath) != 1 {
		return nil, errors.NewMalformedEnvelope(keyTypePath, "secret type path must name exactly one secret")
	}
	name := env.TypePath[0]
	if v, ok := d.secrets[name]; ok {
		return v, nil
	}
	if d.secretsEnv {
		if v, ok := os.LookupEnv(name); ok {
			return v, nil
		}
	}
	return nil, errors.NewMissingSecret(name)
}

func (d *Decoder) construct(env *Envelope) (any, error) {
	newFn, ok := d.registry.Lookup(env.TypePath)
	if !ok {
		return nil, errors.NewUnknownType(env.TypePath)
	}

	kwargs := make(map[string]any, len(env.Kwargs))
	for k, v := range env.Kwargs {
		decoded, err := d.decodeValue(v)
		if err != nil {
			return nil, errors.Nest(keyKwargs+"."+k, err)
		}
		kwargs[k] = decoded
	}

	value, err := newFn(kwargs)
	if err != nil {
		return nil, errors.Nest(keyKwargs, err)
	}

	if len(env.Obj) > 0 {
		setter, ok := value.(FieldSetter)
		names := sortedKeys(env.Obj)
		if !ok {
			return nil, errors.Nest(keyObj, UndeclaredField(names[0]))
		}
		for _, name := range names {
			decoded, err := d.decodeValue(env.Obj[name])
			if err != nil {
				return nil, errors.Nest(keyObj+"."+name, err)
			}
			if err := setter.SetField(name, decoded); err != nil {
				return nil, errors.Nest(keyObj, err)
			}
		}
	}

	if f, ok := value.(Finalizer); ok {
		final, err := f.Finalize()
		if err != nil {
			return nil, errors.Nest(keyObj, err)
		}
		return final, nil
	}
	return value, nil
}

func (d *Decoder) decodeValue(v any) (any, error) {
	switch x := v.(type) {
	case *Envelope:
		return d.Decode(x)
	case map[string]any:
		if IsEnvelope(x) {
			return d.DecodeMap(x)
		}
		out := make(map[string]any, len(x))
		for k, val := range x {
			decoded, err := d.decodeValue(val)
			if err != nil {
				return nil, errors.Nest(k, err)
			}
			out[k] = decoded
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			decoded, err := d.decodeValue(val)
			if err != nil {
				return nil, errors.Nest("["+strconv.Itoa(i)+"]", err)
			}
			out[i] = decoded
		}
		return out, nil
	default:
		return v, nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
