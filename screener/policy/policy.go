// Per-server screening configuration: whether screening is enabled, what to do on a match, where to send notifications, and which members are exempt.
package policy

import (
	"slices"
)

type ServerPolicy struct {
	ServerID         string    `json:"server_id"`
	ScreeningEnabled bool      `json:"screening"`
	Actions          ActionSet `json:"actions"`
	// empty when no notification channel is configured
	NotificationChannel string `json:"notification_channel"`
	// sorted member ids
	Exemptions []string `json:"exemptions"`
}

// Policy a server gets the first time it is seen: screening off, notify only.
func DefaultPolicy(serverID string) ServerPolicy {
	return ServerPolicy{
		ServerID:   serverID,
		Actions:    ActionsNotify,
		Exemptions: []string{},
	}
}

func (p ServerPolicy) Clone() ServerPolicy {
	p.Exemptions = slices.Clone(p.Exemptions)
	if p.Exemptions == nil {
		p.Exemptions = []string{}
	}
	return p
}

func (p ServerPolicy) IsExempt(memberID string) bool {
	_, ok := slices.BinarySearch(p.Exemptions, memberID)
	return ok
}

// Actions to take on a match: the configured set when screening is enabled, notification only otherwise.
func (p ServerPolicy) EffectiveActions() ActionSet {
	if !p.ScreeningEnabled {
		return ActionsNotify
	}
	return p.Actions
}

// returns false if already exempt
func (p *ServerPolicy) addExemption(memberID string) bool {
	i, ok := slices.BinarySearch(p.Exemptions, memberID)
	if ok {
		return false
	}
	p.Exemptions = slices.Insert(p.Exemptions, i, memberID)
	return true
}

func (p *ServerPolicy) removeExemption(memberID string) bool {
	i, ok := slices.BinarySearch(p.Exemptions, memberID)
	if !ok {
		return false
	}
	p.Exemptions = slices.Delete(p.Exemptions, i, i+1)
	return true
}
