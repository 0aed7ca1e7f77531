// Package contract implements the storage contract: a signed,
// schema-validated record binding a renter and farmer to a data-custody
// agreement.
package contract

import "sort"

// Contract is a mapping from canonical property names to validated values.
// Values are stored as the normalized Go types validateField returns
// (string, uint64, int64, uint32), not as raw JSON interface{} - that keeps
// Get/Set/Update, the signing-bytes serializer, and the diff logic all
// working against one representation.
type Contract struct {
	props map[string]interface{}
}

// New builds a Contract from the given fields. Unknown keys are silently
// stripped; known keys are schema-validated (and panic the caller on an
// invalid value, per the documented set/update behaviour).
func New(raw map[string]interface{}) *Contract {
	c := &Contract{props: make(map[string]interface{})}
	for _, name := range fields {
		if v, ok := raw[name]; ok {
			c.props[name] = validateField(name, v)
		}
	}
	return c
}

// Get returns the named field's value and whether it is set. Unknown field
// names always report not-set rather than panicking: reads are not where
// the schema enforces itself.
func (c *Contract) Get(name string) (interface{}, bool) {
	v, ok := c.props[name]
	return v, ok
}

// Set validates and assigns a single field.
func (c *Contract) Set(name string, value interface{}) {
	c.props[name] = validateField(name, value)
}

// Update validates and assigns every field present in raw, leaving fields
// absent from raw untouched. Unknown keys in raw are silently stripped.
func (c *Contract) Update(raw map[string]interface{}) {
	for _, name := range fields {
		if v, ok := raw[name]; ok {
			c.props[name] = validateField(name, v)
		}
	}
}

// Unset removes a field entirely, e.g. for tests that drop signature
// fields or construct incomplete contracts.
func (c *Contract) Unset(name string) {
	delete(c.props, name)
}

// Clone returns a deep-enough copy: the props map is new, but field values
// (all value types) are shared safely since they are immutable once set.
func (c *Contract) Clone() *Contract {
	cp := &Contract{props: make(map[string]interface{}, len(c.props))}
	for k, v := range c.props {
		cp.props[k] = v
	}
	return cp
}

// IsComplete reports whether every required field is present.
func (c *Contract) IsComplete() bool {
	for _, name := range requiredFields {
		if _, ok := c.props[name]; !ok {
			return false
		}
	}
	return true
}

// FieldNames returns the sorted list of fields currently set, useful for
// diffing and for deterministic test assertions.
func (c *Contract) FieldNames() []string {
	names := make([]string, 0, len(c.props))
	for k := range c.props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// DataHash returns the data_hash field, or "" if unset.
func (c *Contract) DataHash() string {
	v, _ := c.Get(FieldDataHash)
	s, _ := v.(string)
	return s
}

// DataSize returns the data_size field, or 0 if unset.
func (c *Contract) DataSize() uint64 {
	v, _ := c.Get(FieldDataSize)
	n, _ := v.(uint64)
	return n
}

// RenterID returns the renter_id field, or "" if unset.
func (c *Contract) RenterID() string {
	v, _ := c.Get(FieldRenterID)
	s, _ := v.(string)
	return s
}

// FarmerID returns the farmer_id field, or "" if unset.
func (c *Contract) FarmerID() string {
	v, _ := c.Get(FieldFarmerID)
	s, _ := v.(string)
	return s
}

// StoreBegin returns the store_begin field, or 0 if unset.
func (c *Contract) StoreBegin() int64 {
	v, _ := c.Get(FieldStoreBegin)
	n, _ := v.(int64)
	return n
}

// StoreEnd returns the store_end field, or 0 if unset.
func (c *Contract) StoreEnd() int64 {
	v, _ := c.Get(FieldStoreEnd)
	n, _ := v.(int64)
	return n
}
