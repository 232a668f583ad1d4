package resolve

import (
	"testing"

	"github.com/hpungsan/lichen/internal/errors"
)

func TestTurn(t *testing.T) {
	tests := []struct {
		name     string
		inputs   map[string]string
		outputs  map[string]string
		keys     Keys
		wantIn   string
		wantOut  string
		wantCode errors.ErrorCode
		wantMsg  string
	}{
		{
			name:    "single keys",
			inputs:  map[string]string{"input": "hi"},
			outputs: map[string]string{"output": "yo"},
			wantIn:  "hi",
			wantOut: "yo",
		},
		{
			name:     "two output keys",
			inputs:   map[string]string{"input": "hi"},
			outputs:  map[string]string{"a": "x", "b": "y"},
			wantCode: errors.ErrAmbiguousOutput,
			wantMsg:  "AMBIGUOUS_OUTPUT: expected exactly one output key, got 2",
		},
		{
			name:     "no output keys",
			inputs:   map[string]string{"input": "hi"},
			outputs:  map[string]string{},
			wantCode: errors.ErrAmbiguousOutput,
			wantMsg:  "AMBIGUOUS_OUTPUT: expected exactly one output key, got 0",
		},
		{
			name:    "memory variable and stop are skipped",
			inputs:  map[string]string{"history": "old", "stop": "\n", "question": "why"},
			outputs: map[string]string{"text": "because"},
			keys:    Keys{MemoryVariables: []string{"history"}},
			wantIn:  "why",
			wantOut: "because",
		},
		{
			name:     "two input keys",
			inputs:   map[string]string{"a": "1", "b": "2"},
			outputs:  map[string]string{"out": "x"},
			wantCode: errors.ErrAmbiguousInput,
		},
		{
			name:    "explicit keys",
			inputs:  map[string]string{"a": "1", "b": "2"},
			outputs: map[string]string{"x": "3", "y": "4"},
			keys:    Keys{InputKey: "b", OutputKey: "y"},
			wantIn:  "2",
			wantOut: "4",
		},
		{
			name:     "explicit input key missing",
			inputs:   map[string]string{"a": "1"},
			outputs:  map[string]string{"x": "3"},
			keys:     Keys{InputKey: "question"},
			wantCode: errors.ErrAmbiguousInput,
		},
		{
			name:     "explicit output key missing",
			inputs:   map[string]string{"a": "1"},
			outputs:  map[string]string{"x": "3"},
			keys:     Keys{OutputKey: "answer"},
			wantCode: errors.ErrAmbiguousOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out, err := Turn(tt.inputs, tt.outputs, tt.keys)
			if tt.wantCode != "" {
				if !errors.Is(err, tt.wantCode) {
					t.Fatalf("Turn() error = %v, want %s", err, tt.wantCode)
				}
				if tt.wantMsg != "" && err.Error() != tt.wantMsg {
					t.Errorf("Turn() error = %q, want %q", err.Error(), tt.wantMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Turn() error = %v", err)
			}
			if in != tt.wantIn || out != tt.wantOut {
				t.Errorf("Turn() = (%q, %q), want (%q, %q)", in, out, tt.wantIn, tt.wantOut)
			}
		})
	}
}
