// internal/inference/prompt.go
package inference

import (
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/quantumagi/agi-sdk-go/internal/action"
	"github.com/quantumagi/agi-sdk-go/internal/agent"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// systemPrompt instructs the model to act as a computer-use agent and to
// answer with exactly one JSON action object per turn.
const systemPrompt = `You are a computer-use agent. You are given a task and a series of screenshots showing the current state of the screen. On each turn, decide the single next action that makes progress on the task.

Respond with ONLY a JSON object describing one action. No prose, no markdown fences. Available actions:

{"type": "click", "x": <int>, "y": <int>, "button": "left"|"right"|"middle"}
{"type": "double_click", "x": <int>, "y": <int>}
{"type": "right_click", "x": <int>, "y": <int>}
{"type": "triple_click", "x": <int>, "y": <int>}
{"type": "hover", "x": <int>, "y": <int>}
{"type": "type", "text": "<text to type>"}
{"type": "key", "key": "<key or combo, e.g. Enter, ctrl+a>"}
{"type": "scroll", "x": <int>, "y": <int>, "direction": "up"|"down"|"left"|"right", "amount": <int>}
{"type": "drag", "start_x": <int>, "start_y": <int>, "end_x": <int>, "end_y": <int>}
{"type": "wait", "duration": <seconds>}
{"type": "screenshot"}
{"type": "ask_question", "question": "<question for the user>"}
{"type": "finish", "message": "<completion summary>"}
{"type": "fail", "reason": "<why the task cannot be completed>"}

Rules:
- Use "ask_question" when you are missing information only the user has.
- Use "finish" once the task is fully complete, never before.
- Use "fail" only when the task is impossible to complete.
- Coordinates are pixels in the screenshot you were shown.

You may optionally wrap the action as {"action": {...}, "reasoning": "<short rationale>", "confidence": <0..1>}.`

// highImpactKeywords flag actions whose description suggests irreversible or
// costly effects. A match upgrades the step to require user confirmation.
var highImpactKeywords = []string{
	"delete", "remove", "erase", "destroy", "format",
	"pay", "purchase", "buy", "order", "checkout", "transfer",
	"send", "submit", "post", "publish", "share",
	"sign", "agree", "accept", "confirm", "authorize",
	"unsubscribe", "cancel", "close account", "deactivate",
	"shutdown", "reboot", "install", "uninstall",
}

// isHighImpact reports whether the action or its rationale trips the
// high-impact keyword heuristic.
func isHighImpact(act action.Action, reasoning string) bool {
	haystack := strings.ToLower(act.String() + " " + act.Text + " " + reasoning)
	for _, kw := range highImpactKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// modelEnvelope is the optional wrapper shape a model may use around the
// action object.
type modelEnvelope struct {
	Action     jsoniter.RawMessage `json:"action"`
	Reasoning  string              `json:"reasoning"`
	Confidence float64             `json:"confidence"`
}

// parseModelResponse turns raw model output into an inference result. It
// tolerates markdown code fences and both the bare-action and enveloped
// response shapes.
func parseModelResponse(raw string, decoder *action.Decoder) (agent.InferenceResult, error) {
	trimmed := stripFences(raw)

	var env modelEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err == nil && len(env.Action) > 0 {
		act, err := decoder.Decode(env.Action)
		if err != nil {
			return agent.InferenceResult{}, err
		}
		res := agent.InferenceResult{
			Action:     act,
			Reasoning:  env.Reasoning,
			Confidence: env.Confidence,
		}
		res.RequiresConfirmation = isHighImpact(act, env.Reasoning)
		return res, nil
	}

	act, err := decoder.Decode([]byte(trimmed))
	if err != nil {
		return agent.InferenceResult{}, err
	}
	return agent.InferenceResult{
		Action:               act,
		Confidence:           1.0,
		RequiresConfirmation: isHighImpact(act, ""),
	}, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
