package contract

import (
	"encoding/json"
	"fmt"
)

// toJSONMap converts props to the JSON-marshalable representation: the
// uint32 renter_hd_index is widened to uint64 so it encodes as a plain
// number. encoding/json sorts map[string]interface{} keys lexicographically
// on marshal, which is exactly the canonical ordering both SigningBytes and
// ToBytes require - no separate sort step needed.
func (c *Contract) toJSONMap() map[string]interface{} {
	m := make(map[string]interface{}, len(c.props))
	for k, v := range c.props {
		if idx, ok := v.(uint32); ok {
			m[k] = uint64(idx)
			continue
		}
		m[k] = v
	}
	return m
}

// SigningBytes returns the canonical UTF-8 JSON encoding of the contract
// with both signature fields removed, keys in lexicographic order. This is
// exactly what Sign and Verify operate over.
func (c *Contract) SigningBytes() ([]byte, error) {
	m := c.toJSONMap()
	delete(m, FieldRenterSignature)
	delete(m, FieldFarmerSignature)
	return json.Marshal(m)
}

// ToBytes returns the canonical UTF-8 JSON encoding of the full contract,
// signatures included.
func (c *Contract) ToBytes() ([]byte, error) {
	return json.Marshal(c.toJSONMap())
}

// FromBytes parses the canonical JSON encoding produced by ToBytes. Unknown
// properties are silently stripped, matching New. Unlike New, FromBytes
// recovers a schema-violation panic into an error: it is the entry point
// for contracts arriving over the wire, where a malformed peer message must
// not crash the handler.
func FromBytes(b []byte) (c *Contract, err error) {
	var raw map[string]interface{}
	if jerr := json.Unmarshal(b, &raw); jerr != nil {
		return nil, fmt.Errorf("contract: malformed JSON: %w", jerr)
	}
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = fmt.Errorf("contract: %v", r)
		}
	}()
	c = New(raw)
	return c, nil
}
