package questions

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedAction indicates callback data that is neither a selection
// nor the submit action.
var ErrMalformedAction = errors.New("malformed callback action")

// ActionKind discriminates callback actions.
type ActionKind int

const (
	// ActionSelect picks an option for one sub-question.
	ActionSelect ActionKind = iota
	// ActionSubmit finalizes the accumulated selections.
	ActionSubmit
)

// Action is a parsed inline-button callback. The wire format is the bot's
// original encoding: "ans_<sub>_<option>" for selections and "submit".
type Action struct {
	Kind   ActionKind
	Sub    int
	Option int
}

// ParseAction decodes callback data into an Action.
func ParseAction(data string) (Action, error) {
	if data == "submit" {
		return Action{Kind: ActionSubmit}, nil
	}
	rest, ok := strings.CutPrefix(data, "ans_")
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, data)
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 2 {
		return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, data)
	}
	sub, err := strconv.Atoi(parts[0])
	if err != nil || sub < 0 {
		return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, data)
	}
	opt, err := strconv.Atoi(parts[1])
	if err != nil || opt < 0 {
		return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, data)
	}
	return Action{Kind: ActionSelect, Sub: sub, Option: opt}, nil
}

// Data re-encodes the action into callback data.
func (a Action) Data() string {
	if a.Kind == ActionSubmit {
		return "submit"
	}
	return fmt.Sprintf("ans_%d_%d", a.Sub, a.Option)
}
