package policy

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"github.com/vorth-network/vigil/util/jsonfile"
)

// Stored form of a ServerPolicy, using the legacy settings keys. Nil fields were absent from storage.
type Record struct {
	Screening   *bool          `json:"screening"`
	Do          *string        `json:"do"`
	LogsChannel OptionalID     `json:"logs_channel"`
	Whitelist   *[]jsonfile.ID `json:"whitelist"`
}

// Identifier that may be null, and whose key may be missing entirely.
type OptionalID struct {
	Present bool
	ID      string
}

func (o *OptionalID) UnmarshalJSON(b []byte) error {
	o.Present = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.ID = ""
		return nil
	}
	var id jsonfile.ID
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	o.ID = string(id)
	return nil
}

func (o OptionalID) MarshalJSON() ([]byte, error) {
	if o.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(o.ID)
}

func toRecord(p ServerPolicy) Record {
	do := p.Actions.String()
	whitelist := lo.Map(p.Exemptions, func(id string, _ int) jsonfile.ID {
		return jsonfile.ID(id)
	})
	return Record{
		Screening:   lo.ToPtr(p.ScreeningEnabled),
		Do:          &do,
		LogsChannel: OptionalID{Present: true, ID: p.NotificationChannel},
		Whitelist:   &whitelist,
	}
}

// Converts a stored record, filling in defaults for missing or unusable fields. Reports whether anything had to be repaired.
func fromRecord(serverID string, rec Record, logger *slog.Logger) (ServerPolicy, bool) {
	p := DefaultPolicy(serverID)
	repaired := false

	if rec.Screening != nil {
		p.ScreeningEnabled = *rec.Screening
	} else {
		repaired = true
	}

	if rec.Do != nil {
		actions, err := ParseActionSpec(*rec.Do)
		if err != nil {
			logger.Warn("replacing unparseable stored action", "server", serverID, "do", *rec.Do, "err", err)
			repaired = true
		} else {
			p.Actions = actions
		}
	} else {
		repaired = true
	}

	if rec.LogsChannel.Present {
		p.NotificationChannel = rec.LogsChannel.ID
	} else {
		repaired = true
	}

	if rec.Whitelist != nil {
		p.Exemptions = lo.Uniq(jsonfile.Strings(*rec.Whitelist))
		slices.Sort(p.Exemptions)
	} else {
		repaired = true
	}

	return p, repaired
}
