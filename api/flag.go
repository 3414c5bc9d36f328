package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Flag is the scheduling service's boolean-ish string field ("Y", "N", or
// absent/null). It is decoded once at the JSON boundary into a tri-state so
// downstream code never re-parses the raw string.
type Flag int

const (
	FlagUnset Flag = iota
	FlagYes
	FlagNo
)

// IsYes reports whether the flag was present and set to "Y".
func (f Flag) IsYes() bool { return f == FlagYes }

// String renders the flag in the service's own notation. Unset renders empty.
func (f Flag) String() string {
	switch f {
	case FlagYes:
		return "Y"
	case FlagNo:
		return "N"
	default:
		return ""
	}
}

func (f *Flag) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = FlagUnset
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode flag: %w", err)
	}
	// The service only ever writes "Y"; anything else present means no.
	if s == "Y" {
		*f = FlagYes
	} else {
		*f = FlagNo
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f == FlagUnset {
		return []byte("null"), nil
	}
	return json.Marshal(f.String())
}
