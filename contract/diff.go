package contract

import (
	"fmt"
	"sort"
)

// Diff returns the sorted list of field names whose value differs between a
// and b, including fields present on only one side.
func Diff(a, b *Contract) []string {
	seen := make(map[string]bool)
	for k := range a.props {
		seen[k] = true
	}
	for k := range b.props {
		seen[k] = true
	}

	var diff []string
	for name := range seen {
		av, aok := a.props[name]
		bv, bok := b.props[name]
		if aok != bok {
			diff = append(diff, name)
			continue
		}
		if !valuesEqual(av, bv) {
			diff = append(diff, name)
		}
	}
	sort.Strings(diff)
	return diff
}

// Compare returns Diff filtered down to fields outside the renewal-ignored
// set (renter_id, farmer_id, renter_signature, farmer_signature,
// payment_destination). A renewal is valid iff Compare returns an empty
// slice.
func Compare(a, b *Contract) []string {
	all := Diff(a, b)
	var out []string
	for _, name := range all {
		if !renewalIgnoredFields[name] {
			out = append(out, name)
		}
	}
	return out
}

func valuesEqual(a, b interface{}) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
