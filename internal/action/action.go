// Package action defines the closed vocabulary of actions the agent can take
// and a validating codec for the inference-response boundary. Unknown
// discriminants are a decode error, never a silently-ignored action.
package action

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Type is the discriminant identifying which variant of the action union a
// value represents.
type Type string

const (
	// -- Device actions --
	TypeClick       Type = "click"
	TypeDoubleClick Type = "double_click"
	TypeRightClick  Type = "right_click"
	TypeTripleClick Type = "triple_click"
	TypeHover       Type = "hover"
	TypeType        Type = "type"
	TypeKey         Type = "key"
	TypeScroll      Type = "scroll"
	TypeDrag        Type = "drag"
	TypeWait        Type = "wait"

	// -- Control actions: intercepted by the loop, never executed --
	TypeScreenshot  Type = "screenshot"
	TypeConfirm     Type = "confirm"
	TypeAskQuestion Type = "ask_question"
	TypeFinish      Type = "finish"
	TypeFail        Type = "fail"
)

// knownTypes is the closed discriminant set.
var knownTypes = map[Type]bool{
	TypeClick: true, TypeDoubleClick: true, TypeRightClick: true,
	TypeTripleClick: true, TypeHover: true, TypeType: true, TypeKey: true,
	TypeScroll: true, TypeDrag: true, TypeWait: true, TypeScreenshot: true,
	TypeConfirm: true, TypeAskQuestion: true, TypeFinish: true, TypeFail: true,
}

// Known reports whether t is part of the action vocabulary.
func (t Type) Known() bool { return knownTypes[t] }

// Control reports whether t is a control action. Control actions are
// resolved by the task loop and are explicit no-ops for executors.
func (t Type) Control() bool {
	switch t {
	case TypeScreenshot, TypeConfirm, TypeAskQuestion, TypeFinish, TypeFail:
		return true
	}
	return false
}

// ClickFamily reports whether t is one of the click variants.
func (t Type) ClickFamily() bool {
	switch t {
	case TypeClick, TypeDoubleClick, TypeRightClick, TypeTripleClick:
		return true
	}
	return false
}

// Action is the tagged-union value. Only the fields belonging to the variant
// named by Type are meaningful; Encode emits exactly that field set.
type Action struct {
	Type Type `json:"type"`

	// click / double_click / right_click / triple_click / hover / scroll
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
	Button string `json:"button,omitempty"` // left, right, middle

	// type
	Text string `json:"text,omitempty"`

	// key ("enter", "ctrl+c", "cmd+v", ...)
	Key string `json:"key,omitempty"`

	// scroll
	Direction string `json:"direction,omitempty"` // up, down, left, right
	Amount    int    `json:"amount,omitempty"`

	// drag
	StartX int `json:"start_x,omitempty"`
	StartY int `json:"start_y,omitempty"`
	EndX   int `json:"end_x,omitempty"`
	EndY   int `json:"end_y,omitempty"`

	// wait (seconds)
	Duration float64 `json:"duration,omitempty"`

	// finish
	Message string `json:"message,omitempty"`

	// fail
	Reason string `json:"reason,omitempty"`

	// ask_question
	Question string `json:"question,omitempty"`

	// confirm
	ActionDescription string  `json:"action_description,omitempty"`
	ImpactLevel       string  `json:"impact_level,omitempty"` // low, medium, high
	PendingAction     *Action `json:"pending_action,omitempty"`
}

// Clone returns a deep copy, including any nested pending action.
func (a Action) Clone() Action {
	out := a
	if a.PendingAction != nil {
		pending := a.PendingAction.Clone()
		out.PendingAction = &pending
	}
	return out
}

// Encode serializes the action as the inverse of Decode: the variant's field
// set is always emitted, including zero-valued coordinates, so a decode of
// the output yields an equal Action.
func (a Action) Encode() ([]byte, error) {
	if !a.Type.Known() {
		return nil, &UnrecognizedTypeError{Type: string(a.Type)}
	}

	fields := map[string]interface{}{"type": string(a.Type)}
	switch {
	case a.Type.ClickFamily():
		fields["x"], fields["y"] = a.X, a.Y
		fields["button"] = a.Button
	case a.Type == TypeHover:
		fields["x"], fields["y"] = a.X, a.Y
	case a.Type == TypeType:
		fields["text"] = a.Text
	case a.Type == TypeKey:
		fields["key"] = a.Key
	case a.Type == TypeScroll:
		fields["x"], fields["y"] = a.X, a.Y
		fields["direction"] = a.Direction
		fields["amount"] = a.Amount
	case a.Type == TypeDrag:
		fields["start_x"], fields["start_y"] = a.StartX, a.StartY
		fields["end_x"], fields["end_y"] = a.EndX, a.EndY
	case a.Type == TypeWait:
		fields["duration"] = a.Duration
	case a.Type == TypeFinish:
		if a.Message != "" {
			fields["message"] = a.Message
		}
	case a.Type == TypeFail:
		fields["reason"] = a.Reason
	case a.Type == TypeAskQuestion:
		fields["question"] = a.Question
	case a.Type == TypeConfirm:
		fields["action_description"] = a.ActionDescription
		fields["impact_level"] = a.ImpactLevel
		if a.PendingAction != nil {
			pending, err := a.PendingAction.Encode()
			if err != nil {
				return nil, fmt.Errorf("encoding pending_action: %w", err)
			}
			fields["pending_action"] = jsoniter.RawMessage(pending)
		}
	}
	return json.Marshal(fields)
}

// String renders a short human-readable form for logs and prompts.
func (a Action) String() string {
	switch {
	case a.Type.ClickFamily():
		return fmt.Sprintf("%s(%d, %d)", a.Type, a.X, a.Y)
	case a.Type == TypeHover:
		return fmt.Sprintf("hover(%d, %d)", a.X, a.Y)
	case a.Type == TypeType:
		return fmt.Sprintf("type(%q)", a.Text)
	case a.Type == TypeKey:
		return fmt.Sprintf("key(%s)", a.Key)
	case a.Type == TypeScroll:
		return fmt.Sprintf("scroll(%s x%d at %d, %d)", a.Direction, a.Amount, a.X, a.Y)
	case a.Type == TypeDrag:
		return fmt.Sprintf("drag(%d, %d -> %d, %d)", a.StartX, a.StartY, a.EndX, a.EndY)
	case a.Type == TypeWait:
		return fmt.Sprintf("wait(%.1fs)", a.Duration)
	case a.Type == TypeConfirm:
		return fmt.Sprintf("confirm(%s)", a.ActionDescription)
	case a.Type == TypeAskQuestion:
		return fmt.Sprintf("ask_question(%s)", a.Question)
	case a.Type == TypeFinish:
		return "finish"
	case a.Type == TypeFail:
		return fmt.Sprintf("fail(%s)", a.Reason)
	}
	return string(a.Type)
}
