// Package resolve picks the input and output text of a single turn out of
// the named slots a caller passes in.
package resolve

import (
	"fmt"
	"slices"
	"sort"

	"github.com/hpungsan/lichen/internal/errors"
)

// StopKey is reserved for stop sequences and never treated as prompt input.
const StopKey = "stop"

// Keys configures resolution. Empty InputKey or OutputKey means the key is
// inferred from the mapping.
type Keys struct {
	MemoryVariables []string
	InputKey        string
	OutputKey       string
}

// InputKey returns the prompt input key of inputs: the one key left after
// removing memory variables and the stop slot.
func InputKey(inputs map[string]string, memoryVariables []string) (string, error) {
	var candidates []string
	for k := range inputs {
		if k == StopKey || slices.Contains(memoryVariables, k) {
			continue
		}
		candidates = append(candidates, k)
	}
	sort.Strings(candidates)
	if len(candidates) != 1 {
		return "", errors.NewAmbiguousInput(
			fmt.Sprintf("expected exactly one input key, got %d", len(candidates)), candidates)
	}
	return candidates[0], nil
}

// OutputKey returns the single key of outputs.
func OutputKey(outputs map[string]string) (string, error) {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) != 1 {
		return "", errors.NewAmbiguousOutput(
			fmt.Sprintf("expected exactly one output key, got %d", len(keys)), keys)
	}
	return keys[0], nil
}

// Turn resolves the input and output text of one exchange. It has no side effects.
func Turn(inputs, outputs map[string]string, keys Keys) (string, string, error) {
	inKey := keys.InputKey
	if inKey == "" {
		var err error
		if inKey, err = InputKey(inputs, keys.MemoryVariables); err != nil {
			return "", "", err
		}
	}
	in, ok := inputs[inKey]
	if !ok {
		return "", "", errors.NewAmbiguousInput(
			fmt.Sprintf("configured input key %q not present", inKey), sortedKeys(inputs))
	}

	outKey := keys.OutputKey
	if outKey == "" {
		var err error
		if outKey, err = OutputKey(outputs); err != nil {
			return "", "", err
		}
	}
	out, ok := outputs[outKey]
	if !ok {
		return "", "", errors.NewAmbiguousOutput(
			fmt.Sprintf("configured output key %q not present", outKey), sortedKeys(outputs))
	}
	return in, out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
