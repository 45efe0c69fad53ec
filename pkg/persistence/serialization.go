package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalRoundRecord serializes a RoundRecord to JSON bytes.
func MarshalRoundRecord(r *RoundRecord) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("cannot marshal nil RoundRecord")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RoundRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalRoundRecord deserializes a RoundRecord from JSON bytes.
func UnmarshalRoundRecord(data []byte) (*RoundRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var r RoundRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to RoundRecord: %w", err)
	}

	return &r, nil
}
