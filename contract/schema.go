package contract

// schema.go enumerates the fixed set of contract properties and validates
// values assigned to them. New()/Set()/Update() all route through
// validateField before a value is accepted; anything not named here is
// silently dropped rather than rejected, matching the construction-time
// stripping behaviour.

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Field names, exactly as they appear in the canonical JSON encoding.
const (
	FieldType                 = "type"
	FieldDataHash             = "data_hash"
	FieldDataSize             = "data_size"
	FieldRenterID             = "renter_id"
	FieldFarmerID             = "farmer_id"
	FieldRenterSignature      = "renter_signature"
	FieldFarmerSignature      = "farmer_signature"
	FieldRenterHDKey          = "renter_hd_key"
	FieldRenterHDIndex        = "renter_hd_index"
	FieldStoreBegin           = "store_begin"
	FieldStoreEnd             = "store_end"
	FieldAuditCount           = "audit_count"
	FieldPaymentDestination   = "payment_destination"
	FieldPaymentStoragePrice  = "payment_storage_price"
	FieldPaymentDownloadPrice = "payment_download_price"
)

// fields lists every recognized property, in the order New() walks them.
// It does not determine wire ordering: that is always lexicographic, via
// encoding/json's map key sort.
var fields = []string{
	FieldType,
	FieldDataHash,
	FieldDataSize,
	FieldRenterID,
	FieldFarmerID,
	FieldRenterSignature,
	FieldFarmerSignature,
	FieldRenterHDKey,
	FieldRenterHDIndex,
	FieldStoreBegin,
	FieldStoreEnd,
	FieldAuditCount,
	FieldPaymentDestination,
	FieldPaymentStoragePrice,
	FieldPaymentDownloadPrice,
}

// requiredFields are the fields a contract must hold, all non-null, to be
// "complete". renter_hd_key/renter_hd_index are intentionally absent: they
// are optional even on a complete contract.
var requiredFields = []string{
	FieldType,
	FieldDataHash,
	FieldDataSize,
	FieldRenterID,
	FieldFarmerID,
	FieldRenterSignature,
	FieldFarmerSignature,
	FieldStoreBegin,
	FieldStoreEnd,
	FieldAuditCount,
	FieldPaymentDestination,
	FieldPaymentStoragePrice,
	FieldPaymentDownloadPrice,
}

// renewalIgnoredFields are excluded from Compare, per the material equality
// rule used to validate a renewal.
var renewalIgnoredFields = map[string]bool{
	FieldRenterID:           true,
	FieldFarmerID:           true,
	FieldRenterSignature:    true,
	FieldFarmerSignature:    true,
	FieldPaymentDestination: true,
}

func isKnownField(name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// validateField checks that value is an acceptable value for the named
// field, normalizing numeric types (JSON decodes all numbers as
// float64) along the way. It panics on an invalid value, matching the
// spec's "invalid values panic the caller" rule for set()/update() - schema
// violations here are programmer errors, not recoverable I/O failures.
func validateField(name string, value interface{}) interface{} {
	switch name {
	case FieldType:
		s, ok := value.(string)
		if !ok || s == "" {
			panic(fmt.Sprintf("contract: %s must be a non-empty string", name))
		}
		return s
	case FieldDataHash, FieldRenterID, FieldFarmerID:
		s, ok := value.(string)
		if !ok {
			panic(fmt.Sprintf("contract: %s must be a string", name))
		}
		if _, err := hex.DecodeString(s); err != nil || len(s) != 40 || s != strings.ToLower(s) {
			panic(fmt.Sprintf("contract: %s must be 40 lowercase hex characters", name))
		}
		return s
	case FieldRenterSignature, FieldFarmerSignature:
		s, ok := value.(string)
		if !ok {
			panic(fmt.Sprintf("contract: %s must be a string", name))
		}
		if _, err := base64.StdEncoding.DecodeString(s); err != nil {
			panic(fmt.Sprintf("contract: %s must be base64", name))
		}
		return s
	case FieldRenterHDKey:
		s, ok := value.(string)
		if !ok {
			panic(fmt.Sprintf("contract: %s must be a string", name))
		}
		if _, err := hex.DecodeString(s); err != nil {
			panic(fmt.Sprintf("contract: %s must be hex", name))
		}
		return s
	case FieldDataSize, FieldAuditCount, FieldPaymentStoragePrice, FieldPaymentDownloadPrice:
		n := toUint64(name, value)
		return n
	case FieldRenterHDIndex:
		n := toUint64(name, value)
		if n >= uint64(1)<<31 {
			panic(fmt.Sprintf("contract: %s must not be hardened (< 2^31)", name))
		}
		return uint32(n)
	case FieldStoreBegin, FieldStoreEnd:
		n := toInt64(name, value)
		return n
	case FieldPaymentDestination:
		s, ok := value.(string)
		if !ok || s == "" {
			panic(fmt.Sprintf("contract: %s must be a non-empty string", name))
		}
		return s
	default:
		panic(fmt.Sprintf("contract: unrecognized field %s", name))
	}
}

func toUint64(name string, value interface{}) uint64 {
	switch v := value.(type) {
	case uint64:
		return v
	case int:
		if v < 0 {
			panic(fmt.Sprintf("contract: %s must be non-negative", name))
		}
		return uint64(v)
	case int64:
		if v < 0 {
			panic(fmt.Sprintf("contract: %s must be non-negative", name))
		}
		return uint64(v)
	case float64:
		if v < 0 {
			panic(fmt.Sprintf("contract: %s must be non-negative", name))
		}
		return uint64(v)
	default:
		panic(fmt.Sprintf("contract: %s must be a non-negative integer", name))
	}
}

func toInt64(name string, value interface{}) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		panic(fmt.Sprintf("contract: %s must be an integer", name))
	}
}
