package providers

import "sort"

// SortedFieldKeys returns the payload field names in a stable order.
func (p Payload) SortedFieldKeys() []string {
	keys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
