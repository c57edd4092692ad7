// Package participant contains the payload stored in the node of a barrier participant.
package participant

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

// NamePrefix is the prefix of participant node names, the coordination service appends a sequence.
const NamePrefix = "participant-"

// nolint: gochecknoglobals
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Payload is created once at registration, it is immutable.
type Payload struct {
	// Repository is an origin tag of the participant, for example a GitHub repository.
	Repository string `json:"repository,omitempty"`
	// Value is optional, a participant without the value doesn't aggregate.
	Value   *float64 `json:"participantValue,omitempty"`
	Address string   `json:"ip"`
}

func Encode(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.PrefixError(err, "cannot encode participant payload")
	}
	return data, nil
}

func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, errors.PrefixError(err, "cannot decode participant payload")
	}
	return p, nil
}

// HasValue returns true if the participant submitted a numeric value.
func (p Payload) HasValue() bool {
	return p.Value != nil
}

func Float(v float64) *float64 {
	return &v
}
