package serial

import (
	"encoding/json"
	"testing"
)

func TestToInt(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    int
		wantErr bool
	}{
		{"int", 3, 3, false},
		{"int64", int64(4), 4, false},
		{"uint64 from cbor", uint64(5), 5, false},
		{"json number", json.Number("6"), 6, false},
		{"integral float", 7.0, 7, false},
		{"fractional float", 7.5, 0, true},
		{"string", "8", 0, true},
		{"nil", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToInt("k", tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToInt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ToInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestToMap_AnyKeys(t *testing.T) {
	got, err := ToMap("m", map[any]any{"a": 1})
	if err != nil {
		t.Fatalf("ToMap() error = %v", err)
	}
	if got["a"] != 1 {
		t.Errorf("ToMap()[a] = %v, want 1", got["a"])
	}

	if _, err := ToMap("m", map[any]any{1: "x"}); err == nil {
		t.Error("ToMap() with non-string key error = nil, want error")
	}
}

func TestCheckKeys(t *testing.T) {
	if err := CheckKeys(map[string]any{"k": 1}, "k", "j"); err != nil {
		t.Errorf("CheckKeys() error = %v", err)
	}
	if err := CheckKeys(map[string]any{"z": 1}, "k"); err == nil {
		t.Error("CheckKeys() error = nil, want error")
	}
}
