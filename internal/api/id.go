// ABOUTME: Identifier type tolerant of numeric and string JSON encodings
// ABOUTME: Rails backends emit integer primary keys where clients expect strings

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is a message or conversation identifier. It decodes from either a JSON
// string or a JSON number and always encodes as a string.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}
