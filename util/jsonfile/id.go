package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Platform identifier that older files store as either a JSON number or a JSON string.
//
// Always re-encoded as a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty identifier")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	case 'n':
		if string(b) == "null" {
			*id = ""
			return nil
		}
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err == nil {
			if _, err := strconv.ParseUint(n.String(), 10, 64); err != nil {
				return fmt.Errorf("identifier is not an unsigned integer: %s", n)
			}
			*id = ID(n.String())
			return nil
		}
	}
	return fmt.Errorf("invalid identifier: %s", b)
}

// Converts a list of decoded IDs to plain strings, dropping empty entries.
func Strings(ids []ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, string(id))
		}
	}
	return out
}
