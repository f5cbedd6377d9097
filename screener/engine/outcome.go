package engine

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vorth-network/vigil/screener/namematch"
	"github.com/vorth-network/vigil/screener/policy"
)

// Reason attached to enforcement actions taken on a match.
const ActionReason = "Potential banned user pattern match"

type Status string

const (
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

type ActionResult struct {
	Action policy.Action `json:"action"`
	Status Status        `json:"status"`
	// why the action failed or was skipped
	Reason string `json:"reason,omitempty"`
}

// Result of evaluating one join, ready for the caller to deliver.
type Outcome struct {
	ServerID   string           `json:"server_id"`
	MemberID   string           `json:"member_id"`
	MemberName string           `json:"member_name"`
	Matched    bool             `json:"matched"`
	Match      *namematch.Match `json:"match,omitempty"`
	// always present; empty unless matched
	Actions []ActionResult `json:"actions"`
	// member already carried a name-match flag in this server before this join
	PreviouslyFlagged bool   `json:"previously_flagged"`
	Summary           string `json:"summary"`
	// where to send Summary; empty when the server has none configured
	NotificationChannel string `json:"notification_channel,omitempty"`
}

func actionVerb(a policy.Action) string {
	switch a {
	case policy.ActionBan:
		return "ban"
	case policy.ActionRemove:
		return "kick"
	case policy.ActionNotify:
		return "log"
	}
	return a.String()
}

func actionPast(a policy.Action) string {
	switch a {
	case policy.ActionBan:
		return "banned"
	case policy.ActionRemove:
		return "kicked"
	case policy.ActionNotify:
		return "logged"
	}
	return a.String()
}

// Human readable notification text for a matched member, naming each action taken or failed.
func Summarize(memberID, memberName string, results []ActionResult) string {
	var taken []string
	for _, r := range results {
		switch r.Status {
		case StatusApplied:
			taken = append(taken, actionPast(r.Action))
		case StatusFailed:
			if r.Reason == ErrMissingPermissions.Error() {
				taken = append(taken, fmt.Sprintf("failed to %s (missing permissions)", actionVerb(r.Action)))
			} else {
				taken = append(taken, fmt.Sprintf("error during %s (%s)", actionVerb(r.Action), r.Reason))
			}
		case StatusSkipped:
			taken = append(taken, fmt.Sprintf("skipped %s (%s)", actionVerb(r.Action), r.Reason))
		}
	}

	who := fmt.Sprintf("<@%s> (`%s`)", memberID, memberName)
	if len(taken) == 0 {
		return "⚠️ **Potential banned user detected**: " + who
	}
	return fmt.Sprintf("🚨 **%s potential banned user**: %s", upperFirst(strings.Join(taken, ", ")), who)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
