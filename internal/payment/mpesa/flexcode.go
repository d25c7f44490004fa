package mpesa

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexCode decodes result codes sent either as JSON numbers or as strings.
type flexCode struct {
	value int
	set   bool
}

func (c *flexCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	c.value = n
	c.set = true
	return nil
}
