package action

import (
	"fmt"
	"math"
	"strings"
)

// FieldNormalizer rewrites provider-specific payload encodings onto the
// canonical field set before validation. Normalizers may add or replace
// fields but must not invent new discriminants.
type FieldNormalizer func(fields map[string]interface{}) error

// Decoder validates raw inference payloads into Actions.
type Decoder struct {
	normalizers []FieldNormalizer
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithNormalizer appends a provider-specific field normalizer. Normalizers
// run in registration order, after the built-in paired-point scheme.
func WithNormalizer(n FieldNormalizer) Option {
	return func(d *Decoder) { d.normalizers = append(d.normalizers, n) }
}

// NewDecoder creates a decoder with the built-in coordinate schemes.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{normalizers: []FieldNormalizer{PairedPointScheme}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode parses and validates a raw JSON action payload.
func (d *Decoder) Decode(data []byte) (Action, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return Action{}, &MalformedActionError{Field: "type", Reason: fmt.Sprintf("payload is not a JSON object: %v", err)}
	}
	return d.FromFields(fields)
}

// DecodeDirective parses a directive-string encoding such as
// `click({"x":1,"y":2})` as emitted by some providers.
func (d *Decoder) DecodeDirective(directive string) (Action, error) {
	fields, err := parseDirective(directive)
	if err != nil {
		return Action{}, err
	}
	return d.FromFields(fields)
}

// FromFields validates a decoded payload map into an Action.
func (d *Decoder) FromFields(fields map[string]interface{}) (Action, error) {
	for _, normalize := range d.normalizers {
		if err := normalize(fields); err != nil {
			return Action{}, err
		}
	}

	rawType, ok := fields["type"].(string)
	if !ok || rawType == "" {
		return Action{}, &MalformedActionError{Field: "type", Reason: "is missing"}
	}
	// "done" survives as a legacy alias for finish in older providers.
	if rawType == "done" {
		rawType = string(TypeFinish)
	}
	t := Type(rawType)
	if !t.Known() {
		return Action{}, &UnrecognizedTypeError{Type: rawType}
	}

	a := Action{Type: t}
	var err error
	switch {
	case t.ClickFamily(), t == TypeHover:
		if a.X, err = requireInt(fields, "x"); err != nil {
			return Action{}, err
		}
		if a.Y, err = requireInt(fields, "y"); err != nil {
			return Action{}, err
		}
		if t.ClickFamily() {
			a.Button = optionalString(fields, "button", "left")
			switch a.Button {
			case "left", "right", "middle":
			default:
				return Action{}, &MalformedActionError{Field: "button", Reason: fmt.Sprintf("has unknown value %q", a.Button)}
			}
		}
	case t == TypeType:
		if a.Text, err = requireString(fields, "text"); err != nil {
			return Action{}, err
		}
	case t == TypeKey:
		if a.Key, err = requireString(fields, "key"); err != nil {
			return Action{}, err
		}
	case t == TypeScroll:
		if a.X, err = requireInt(fields, "x"); err != nil {
			return Action{}, err
		}
		if a.Y, err = requireInt(fields, "y"); err != nil {
			return Action{}, err
		}
		if a.Direction, err = requireString(fields, "direction"); err != nil {
			return Action{}, err
		}
		switch a.Direction {
		case "up", "down", "left", "right":
		default:
			return Action{}, &MalformedActionError{Field: "direction", Reason: fmt.Sprintf("has unknown value %q", a.Direction)}
		}
		a.Amount = optionalInt(fields, "amount", 3)
	case t == TypeDrag:
		for field, dst := range map[string]*int{
			"start_x": &a.StartX, "start_y": &a.StartY,
			"end_x": &a.EndX, "end_y": &a.EndY,
		} {
			if *dst, err = requireInt(fields, field); err != nil {
				return Action{}, err
			}
		}
	case t == TypeWait:
		a.Duration = optionalFloat(fields, "duration", 1.0)
		if a.Duration < 0 {
			return Action{}, &MalformedActionError{Field: "duration", Reason: "must not be negative"}
		}
	case t == TypeFinish:
		a.Message = optionalString(fields, "message", "")
	case t == TypeFail:
		if a.Reason, err = requireString(fields, "reason"); err != nil {
			return Action{}, err
		}
	case t == TypeAskQuestion:
		if a.Question, err = requireString(fields, "question"); err != nil {
			return Action{}, err
		}
	case t == TypeConfirm:
		if a.ActionDescription, err = requireString(fields, "action_description"); err != nil {
			return Action{}, err
		}
		a.ImpactLevel = optionalString(fields, "impact_level", "high")
		pendingRaw, ok := fields["pending_action"].(map[string]interface{})
		if !ok {
			return Action{}, &MalformedActionError{Field: "pending_action", Reason: "is missing or not an object"}
		}
		pending, err := d.FromFields(pendingRaw)
		if err != nil {
			return Action{}, fmt.Errorf("in pending_action: %w", err)
		}
		a.PendingAction = &pending
	}
	return a, nil
}

// PairedPointScheme maps point-array coordinate encodings onto the x/y and
// start/end field pairs. Providers that emit `"coordinate": [x, y]` or
// `"point": [x, y]` (and `start_point`/`end_point` for drags) are normalized
// here so the state machine never sees the quirk.
func PairedPointScheme(fields map[string]interface{}) error {
	for _, key := range []string{"coordinate", "point"} {
		if err := expandPair(fields, key, "x", "y"); err != nil {
			return err
		}
	}
	if err := expandPair(fields, "start_point", "start_x", "start_y"); err != nil {
		return err
	}
	return expandPair(fields, "end_point", "end_x", "end_y")
}

func expandPair(fields map[string]interface{}, key, xKey, yKey string) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	pair, ok := raw.([]interface{})
	if !ok || len(pair) != 2 {
		return &MalformedActionError{Field: key, Reason: "must be a two-element array"}
	}
	if _, exists := fields[xKey]; !exists {
		fields[xKey] = pair[0]
	}
	if _, exists := fields[yKey]; !exists {
		fields[yKey] = pair[1]
	}
	delete(fields, key)
	return nil
}

// parseDirective splits `name({...json...})` into a payload map. An empty
// argument list is accepted: `finish()`.
func parseDirective(directive string) (map[string]interface{}, error) {
	directive = strings.TrimSpace(directive)
	open := strings.Index(directive, "(")
	if open <= 0 || !strings.HasSuffix(directive, ")") {
		return nil, &MalformedActionError{Field: "type", Reason: fmt.Sprintf("directive %q is not of the form name({...})", directive)}
	}

	name := strings.TrimSpace(directive[:open])
	for _, r := range name {
		if r != '_' && (r < 'a' || r > 'z') {
			return nil, &MalformedActionError{Field: "type", Reason: fmt.Sprintf("directive name %q is not an action name", name)}
		}
	}

	fields := map[string]interface{}{}
	args := strings.TrimSpace(directive[open+1 : len(directive)-1])
	if args != "" {
		if err := json.Unmarshal([]byte(args), &fields); err != nil {
			return nil, &MalformedActionError{Field: name, Reason: fmt.Sprintf("directive arguments are not a JSON object: %v", err)}
		}
	}
	fields["type"] = name
	return fields, nil
}

// -- field accessors --

func requireInt(fields map[string]interface{}, key string) (int, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, &MalformedActionError{Field: key, Reason: "is missing"}
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, &MalformedActionError{Field: key, Reason: "must be a number"}
	}
	// Models sometimes emit fractional pixels; round to the nearest one
	// instead of truncating toward zero.
	return int(math.Round(f)), nil
}

func optionalInt(fields map[string]interface{}, key string, def int) int {
	if f, ok := fields[key].(float64); ok {
		return int(math.Round(f))
	}
	return def
}

func optionalFloat(fields map[string]interface{}, key string, def float64) float64 {
	if f, ok := fields[key].(float64); ok {
		return f
	}
	return def
}

func requireString(fields map[string]interface{}, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", &MalformedActionError{Field: key, Reason: "is missing"}
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", &MalformedActionError{Field: key, Reason: "must be a non-empty string"}
	}
	return s, nil
}

func optionalString(fields map[string]interface{}, key, def string) string {
	if s, ok := fields[key].(string); ok && s != "" {
		return s
	}
	return def
}
