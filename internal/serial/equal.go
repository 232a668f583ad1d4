package serial

import (
	"bytes"
	"encoding/json"
)

// Equal reports whether a and b encode to the same envelope. This is the
// structural equality decode(encode(x)) is required to preserve: type
// identity, constructor arguments and every declared field, recursively.
func (e *Encoder) Equal(a, b any) bool {
	ab, errA := json.Marshal(e.Encode(a).Map())
	bb, errB := json.Marshal(e.Encode(b).Map())
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
