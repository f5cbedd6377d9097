package policy

import (
	"fmt"
	"strings"
	"unicode"
)

// A single response to a screening match.
type Action uint8

const (
	ActionNotify Action = 1 << iota
	ActionRemove
	ActionBan
)

func (a Action) String() string {
	switch a {
	case ActionNotify:
		return "notify"
	case ActionRemove:
		return "remove"
	case ActionBan:
		return "ban"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	for _, known := range actionOrder {
		if string(b) == known.String() {
			*a = known
			return nil
		}
	}
	return fmt.Errorf("%w: unknown action %q", ErrInvalidAction, string(b))
}

// Set of actions configured for a server. Only the sets accepted by ParseActionSpec are valid.
type ActionSet uint8

var (
	ActionsNotify    = ActionSet(ActionNotify)
	ActionsRemove    = ActionSet(ActionRemove)
	ActionsBan       = ActionSet(ActionBan)
	ActionsBanNotify = ActionSet(ActionBan | ActionNotify)
	ActionsRemNotify = ActionSet(ActionRemove | ActionNotify)
)

// order actions are executed and reported in
var actionOrder = []Action{ActionBan, ActionRemove, ActionNotify}

func (s ActionSet) Has(a Action) bool {
	return uint8(s)&uint8(a) != 0
}

// Member actions, in execution order (enforcement before notification).
func (s ActionSet) Actions() []Action {
	var out []Action
	for _, a := range actionOrder {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

func (s ActionSet) Valid() bool {
	switch s {
	case ActionsNotify, ActionsRemove, ActionsBan, ActionsBanNotify, ActionsRemNotify:
		return true
	}
	return false
}

// Canonical stored form: "ban", "kick", "log", "ban,log" or "kick,log".
func (s ActionSet) String() string {
	var parts []string
	if s.Has(ActionBan) {
		parts = append(parts, "ban")
	}
	if s.Has(ActionRemove) {
		parts = append(parts, "kick")
	}
	if s.Has(ActionNotify) {
		parts = append(parts, "log")
	}
	return strings.Join(parts, ",")
}

func (s ActionSet) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %08b", ErrInvalidAction, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *ActionSet) UnmarshalText(b []byte) error {
	parsed, err := ParseActionSpec(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

var actionTokens = map[string]Action{
	"ban":    ActionBan,
	"kick":   ActionRemove,
	"remove": ActionRemove,
	"log":    ActionNotify,
	"notify": ActionNotify,
}

// Parses an operator-supplied action spec such as "ban", "Log, Kick" or ",ban,log,".
//
// Matching is case-insensitive, whitespace is ignored, leading and trailing commas are stripped, and empty parts are dropped. A spec is either a single action, or exactly two: notify plus one of ban or remove.
func ParseActionSpec(spec string) (ActionSet, error) {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, spec)
	normalized = strings.Trim(normalized, ",")

	var parts []string
	for _, p := range strings.Split(normalized, ",") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	var set ActionSet
	for _, p := range parts {
		a, ok := actionTokens[p]
		if !ok {
			return 0, fmt.Errorf("%w: unknown action %q", ErrInvalidAction, p)
		}
		if set.Has(a) {
			return 0, fmt.Errorf("%w: %q repeats an action", ErrInvalidAction, spec)
		}
		set |= ActionSet(a)
	}

	switch len(parts) {
	case 0:
		return 0, fmt.Errorf("%w: empty action", ErrInvalidAction)
	case 1:
		return set, nil
	case 2:
		if set.Valid() {
			return set, nil
		}
	}
	return 0, fmt.Errorf("%w: %q is not a supported combination (use ban, kick, log, ban,log or kick,log)", ErrInvalidAction, spec)
}

// Parses an on/off screening toggle.
func ParseScreeningState(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "enable", "enabled", "true":
		return true, nil
	case "off", "disable", "disabled", "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q (use on or off)", ErrInvalidState, s)
}
