package features

import (
	"encoding/json"
	"slices"
)

// UnknownCode is the code given to a value the encoder never saw in training.
const UnknownCode = -1

// Encoder maps categorical strings to stable integer codes. Codes are the
// positions of the values in sorted order, so the same training values always
// produce the same table. An Encoder is immutable once built.
type Encoder struct {
	classes []string
	index   map[string]int
}

// FitEncoder builds an encoder over the distinct values. Empty strings are
// ignored.
func FitEncoder(values []string) *Encoder {
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	slices.Sort(classes)
	return NewEncoder(classes)
}

// NewEncoder builds an encoder from an already ordered class list, as loaded
// from a saved bundle.
func NewEncoder(classes []string) *Encoder {
	e := &Encoder{
		classes: slices.Clone(classes),
		index:   make(map[string]int, len(classes)),
	}
	for i, c := range e.classes {
		e.index[c] = i
	}
	return e
}

// Encode returns the code for v, or UnknownCode if v was not seen in training.
func (e *Encoder) Encode(v string) float64 {
	if e == nil {
		return UnknownCode
	}
	if code, ok := e.index[v]; ok {
		return float64(code)
	}
	return UnknownCode
}

// Classes returns the encoded values in code order.
func (e *Encoder) Classes() []string {
	if e == nil {
		return nil
	}
	return slices.Clone(e.classes)
}

// Len reports the number of known classes.
func (e *Encoder) Len() int {
	if e == nil {
		return 0
	}
	return len(e.classes)
}

type encoderJSON struct {
	Classes []string `json:"classes"`
}

// MarshalJSON implements json.Marshaler.
func (e *Encoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(encoderJSON{Classes: e.Classes()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Encoder) UnmarshalJSON(data []byte) error {
	var raw encoderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = *NewEncoder(raw.Classes)
	return nil
}
