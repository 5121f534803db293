package discord

import (
	"strconv"
)

// Snowflake is the ID format used across the gateway and REST API.
type Snowflake uint64

func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// Snowflakes are transmitted as strings to avoid precision loss in
// javascript consumers.
func (s Snowflake) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(s), 10) + `"`), nil
}

func (s *Snowflake) UnmarshalJSON(data []byte) error {
	if len(data) >= 2 && data[0] == '"' {
		data = data[1 : len(data)-1]
	}

	if len(data) == 0 || string(data) == "null" {
		*s = 0

		return nil
	}

	value, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return err
	}

	*s = Snowflake(value)

	return nil
}
