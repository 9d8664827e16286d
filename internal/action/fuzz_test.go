// File: internal/action/fuzz_test.go
package action

import (
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
)

// FuzzDecode throws arbitrary bytes at the decoder. The goal is survival:
// every input either decodes into a valid action or returns a typed error,
// never a panic.
func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"type": "click", "x": 1, "y": 2}`))
	f.Add([]byte(`{"type": "confirm", "action_description": "d", "pending_action": {"type": "wait"}}`))
	f.Add([]byte(`{"type": "drag", "start_point": [0, 0], "end_point": [5, 5]}`))
	f.Add([]byte(`not json at all`))

	dec := NewDecoder()
	f.Fuzz(func(t *testing.T, data []byte) {
		act, err := dec.Decode(data)
		if err != nil {
			return
		}
		if !act.Type.Known() {
			t.Errorf("decoder accepted unknown type %q", act.Type)
		}
	})
}

// FuzzEncodeDecodeRoundTrip populates an Action from fuzzed data and checks
// that anything the encoder accepts is accepted back by the decoder.
func FuzzEncodeDecodeRoundTrip(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		act := &Action{}
		if err := fuzzConsumer.GenerateStruct(act); err != nil {
			return
		}
		// Nested pending actions from the fuzzer are unbounded; one level is
		// enough for the property.
		if act.PendingAction != nil {
			act.PendingAction.PendingAction = nil
		}

		encoded, err := act.Encode()
		if err != nil {
			return
		}
		if _, err := NewDecoder().Decode(encoded); err != nil {
			// Encoded forms can still fail validation (empty strings,
			// negative durations); that must be a typed error, not a panic.
			var malformed *MalformedActionError
			var unrecognized *UnrecognizedTypeError
			if !errors.As(err, &malformed) && !errors.As(err, &unrecognized) {
				t.Errorf("decode of encoded action returned untyped error: %v", err)
			}
		}
	})
}
