package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
)

// Reserved keys are owned by the book and never stored in Address.Fields.
const (
	KeyID        = "id"
	KeyIsPrimary = "isPrimary"
)

// Address book upper-bound limits.
const (
	// MaxAddressesPerBook is the maximum number of addresses a single owner may keep.
	MaxAddressesPerBook = 50
	// MaxFieldsPerAddress is the maximum number of caller-supplied keys on one address.
	MaxFieldsPerAddress = 32
	// MaxFieldKeyLength is the maximum length of a single field key.
	MaxFieldKeyLength = 64
	// MaxAddressBytes is the maximum encoded size of one address.
	MaxAddressBytes = 4 << 10
)

// Address is one saved delivery address. Only ID and IsPrimary carry meaning
// for the book; everything else the caller sends is kept opaque in Fields.
//
// The JSON form is flat: {"id":"addr_..","isPrimary":true,"city":"Pune",...}.
type Address struct {
	ID        string
	IsPrimary bool
	Fields    map[string]any
}

// NewID returns a fresh address id of the form addr_<unix-millis>_<suffix>.
func NewID(now time.Time) string {
	return fmt.Sprintf("addr_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

// MarshalJSON flattens Fields next to id and isPrimary. An empty id is
// omitted so records imported without one round-trip unchanged.
func (a Address) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(a.Fields)+2)
	for k, v := range a.Fields {
		m[k] = v
	}
	if a.ID != "" {
		m[KeyID] = a.ID
	}
	m[KeyIsPrimary] = a.IsPrimary
	return json.Marshal(m)
}

// UnmarshalJSON reads the flat form. Numbers are kept as json.Number so that
// opaque values survive a load/save cycle without float rounding.
func (a *Address) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}

	*a = Address{}
	if id, ok := m[KeyID].(string); ok {
		a.ID = id
	}
	if primary, ok := m[KeyIsPrimary].(bool); ok {
		a.IsPrimary = primary
	}
	delete(m, KeyID)
	delete(m, KeyIsPrimary)
	if len(m) > 0 {
		a.Fields = m
	}
	return nil
}

// Clone returns a copy whose Fields map can be modified independently.
func (a Address) Clone() Address {
	a.Fields = maps.Clone(a.Fields)
	return a
}

// SanitizeFields copies fields without the reserved keys.
func SanitizeFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == KeyID || k == KeyIsPrimary {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ValidateAddress checks the size limits of a single address.
func ValidateAddress(a Address) error {
	if len(a.Fields) > MaxFieldsPerAddress {
		return apperrors.InvalidInput(fmt.Sprintf("address must not have more than %d fields", MaxFieldsPerAddress))
	}
	for k := range a.Fields {
		if k == "" || len(k) > MaxFieldKeyLength {
			return apperrors.InvalidInput(fmt.Sprintf("field keys must have 1 to %d characters", MaxFieldKeyLength))
		}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return apperrors.InvalidInput("address fields must be JSON values")
	}
	if len(data) > MaxAddressBytes {
		return apperrors.InvalidInput(fmt.Sprintf("address must not exceed %d bytes", MaxAddressBytes))
	}
	return nil
}
