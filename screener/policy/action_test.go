package policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseActionSpec(t *testing.T) {
	assert := assert.New(t)

	valid := map[string]ActionSet{
		"ban":         ActionsBan,
		"kick":        ActionsRemove,
		"remove":      ActionsRemove,
		"log":         ActionsNotify,
		"notify":      ActionsNotify,
		"ban,log":     ActionsBanNotify,
		"Log, Ban":    ActionsBanNotify,
		"kick,log":    ActionsRemNotify,
		"log,kick":    ActionsRemNotify,
		",ban,log,":   ActionsBanNotify,
		"ban,,log":    ActionsBanNotify,
		" B A N ":     ActionsBan,
		"ban,":        ActionsBan,
		"NOTIFY,kick": ActionsRemNotify,
	}
	for spec, want := range valid {
		got, err := ParseActionSpec(spec)
		if assert.NoError(err, spec) {
			assert.Equal(want, got, spec)
		}
	}

	invalid := []string{
		"",
		",,",
		"ban,kick",
		"log,log",
		"ban,kick,log",
		"mute",
		"ban;log",
	}
	for _, spec := range invalid {
		_, err := ParseActionSpec(spec)
		assert.ErrorIs(err, ErrInvalidAction, spec)
	}
}

func TestActionSetString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("ban", ActionsBan.String())
	assert.Equal("kick", ActionsRemove.String())
	assert.Equal("log", ActionsNotify.String())
	assert.Equal("ban,log", ActionsBanNotify.String())
	assert.Equal("kick,log", ActionsRemNotify.String())

	assert.Equal([]Action{ActionBan, ActionNotify}, ActionsBanNotify.Actions())
	assert.True(ActionsRemNotify.Has(ActionRemove))
	assert.False(ActionsRemNotify.Has(ActionBan))
	assert.False(ActionSet(0).Valid())

	b, err := json.Marshal(struct {
		A ActionSet `json:"a"`
	}{ActionsRemNotify})
	assert.NoError(err)
	assert.Equal(`{"a":"kick,log"}`, string(b))

	var a Action
	assert.NoError(a.UnmarshalText([]byte("remove")))
	assert.Equal(ActionRemove, a)
	assert.ErrorIs(a.UnmarshalText([]byte("kick")), ErrInvalidAction)
}

func TestParseScreeningState(t *testing.T) {
	assert := assert.New(t)

	for _, s := range []string{"on", "ON", "enable", "true"} {
		v, err := ParseScreeningState(s)
		assert.NoError(err)
		assert.True(v, s)
	}
	for _, s := range []string{"off", "Disable", "false"} {
		v, err := ParseScreeningState(s)
		assert.NoError(err)
		assert.False(v, s)
	}
	_, err := ParseScreeningState("maybe")
	assert.ErrorIs(err, ErrInvalidState)
}
