// Package aggregation computes statistics over payloads of barrier participants.
package aggregation

import (
	"slices"
	"time"

	"github.com/keboola/go-barrier/internal/pkg/service/barrier/participant"
)

const TopAddressesLimit = 10

type AddressCount struct {
	Address string
	Count   int
}

// Report is computed by the leader on each membership delta with additions.
type Report struct {
	// Count of participants with a known payload.
	Count int
	// Values is count of participants with a numeric value, Max, Min and Mean are valid only if Values > 0.
	Values          int
	Max             float64
	Min             float64
	Mean            float64
	UniqueAddresses int
	TopAddresses    []AddressCount
	// Added is count of new participants in the delta.
	Added int
	// Elapsed is duration of the payloads fetching.
	Elapsed time.Duration
}

// Compute aggregates payloads of the names present in the metadata map, names without a payload are skipped.
// Addresses with the same count keep the order in which they were first encountered.
func Compute(names []string, metadata map[string]participant.Payload) Report {
	var r Report
	var sum float64
	var addressOrder []string
	addressCounts := make(map[string]int)

	for _, name := range names {
		payload, found := metadata[name]
		if !found {
			continue
		}
		r.Count++

		if payload.Value != nil {
			v := *payload.Value
			if r.Values == 0 || v > r.Max {
				r.Max = v
			}
			if r.Values == 0 || v < r.Min {
				r.Min = v
			}
			sum += v
			r.Values++
		}

		if _, seen := addressCounts[payload.Address]; !seen {
			addressOrder = append(addressOrder, payload.Address)
		}
		addressCounts[payload.Address]++
	}

	if r.Values > 0 {
		r.Mean = sum / float64(r.Values)
	}

	r.UniqueAddresses = len(addressOrder)
	for _, address := range addressOrder {
		r.TopAddresses = append(r.TopAddresses, AddressCount{Address: address, Count: addressCounts[address]})
	}
	slices.SortStableFunc(r.TopAddresses, func(a, b AddressCount) int {
		return b.Count - a.Count
	})
	if len(r.TopAddresses) > TopAddressesLimit {
		r.TopAddresses = r.TopAddresses[:TopAddressesLimit]
	}

	return r
}
