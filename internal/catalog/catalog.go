// Package catalog assembles the process-wide decoder registry from the
// registrations each serializable package declares.
package catalog

import (
	"sync"

	"github.com/hpungsan/lichen/internal/llm"
	"github.com/hpungsan/lichen/internal/message"
	"github.com/hpungsan/lichen/internal/prompt"
	"github.com/hpungsan/lichen/internal/retention"
	"github.com/hpungsan/lichen/internal/serial"
	"github.com/hpungsan/lichen/internal/summarize"
	"github.com/hpungsan/lichen/internal/tokens"
	"github.com/hpungsan/lichen/internal/transcript"
)

var (
	once     sync.Once
	registry *serial.Registry
)

// Groups returns every package's registrations in a fixed order.
func Groups() [][]serial.Registration {
	return [][]serial.Registration{
		message.Registrations(),
		transcript.Registrations(),
		tokens.Registrations(),
		prompt.Registrations(),
		llm.Registrations(),
		summarize.Registrations(),
		retention.Registrations(),
	}
}

// Default returns the registry, building it on first use.
func Default() *serial.Registry {
	once.Do(func() {
		reg, err := serial.NewRegistry(Groups()...)
		if err != nil {
			panic("catalog: registry initialization failed: " + err.Error())
		}
		registry = reg
	})
	return registry
}

// Encoder returns an encoder bound to the default registry.
func Encoder() *serial.Encoder {
	return serial.NewEncoder(Default())
}

// Decoder returns a decoder bound to the default registry.
func Decoder(opts ...serial.DecodeOption) *serial.Decoder {
	return serial.NewDecoder(Default(), opts...)
}
