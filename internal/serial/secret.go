package serial

// Secret marks a field value that must never be written into an envelope.
// It encodes as a secret envelope whose type path is the single element
// Name; decoding resolves Name from the values supplied to the Decoder.
type Secret struct {
	Name  string
	Value string
}

// String never reveals the value.
func (s Secret) String() string {
	return "Secret(" + s.Name + ")"
}
