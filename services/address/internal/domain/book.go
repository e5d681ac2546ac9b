package domain

import (
	"bytes"
	"encoding/json"
	"time"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
)

// AddressBook is the unit that is loaded and saved as a whole for one owner.
// Version increases by one on every successful compare-and-swap save.
type AddressBook struct {
	Owner     string    `json:"owner"`
	Addresses []Address `json:"addresses"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAddressBook returns an empty, never-saved book.
func NewAddressBook(owner string) *AddressBook {
	return &AddressBook{
		Owner:     owner,
		Addresses: []Address{},
	}
}

// DecodeBook decodes a stored book. A bare JSON array is accepted as the
// address list of a book at version 0.
func DecodeBook(owner string, data []byte) (*AddressBook, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Address
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		book := NewAddressBook(owner)
		if list != nil {
			book.Addresses = list
		}
		return book, nil
	}

	var book AddressBook
	if err := json.Unmarshal(trimmed, &book); err != nil {
		return nil, err
	}
	if book.Owner == "" {
		book.Owner = owner
	}
	if book.Addresses == nil {
		book.Addresses = []Address{}
	}
	return &book, nil
}

// PrimaryID returns the id of the first primary address, or "".
func (b *AddressBook) PrimaryID() string {
	for _, a := range b.Addresses {
		if a.IsPrimary {
			return a.ID
		}
	}
	return ""
}

// Patch is a partial update. Fields are shallow-merged; a nil IsPrimary
// leaves the flag untouched.
type Patch struct {
	Fields    map[string]any
	IsPrimary *bool
}

// IndexOf returns the position of the address with the given id, or -1.
func IndexOf(list []Address, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// PrimaryCount returns how many addresses are flagged primary.
func PrimaryCount(list []Address) int {
	n := 0
	for _, a := range list {
		if a.IsPrimary {
			n++
		}
	}
	return n
}

// HasSinglePrimary reports whether list is empty or has exactly one primary.
func HasSinglePrimary(list []Address) bool {
	return len(list) == 0 || PrimaryCount(list) == 1
}

// Add prepends rec. The new address becomes primary when it asks to or when
// the list was empty, and in that case every other address is demoted.
func Add(list []Address, rec Address) []Address {
	wantsPrimary := rec.IsPrimary || len(list) == 0

	out := make([]Address, 0, len(list)+1)
	rec = rec.Clone()
	rec.IsPrimary = wantsPrimary
	out = append(out, rec)
	for _, a := range list {
		c := a.Clone()
		if wantsPrimary {
			c.IsPrimary = false
		}
		out = append(out, c)
	}
	return out
}

// Update merges patch into the address with the given id. When no address is
// primary afterwards the first one is promoted and repaired is true.
func Update(list []Address, id string, patch Patch) (out []Address, repaired bool, err error) {
	idx := IndexOf(list, id)
	if idx < 0 {
		return nil, false, apperrors.NotFound("address", id)
	}

	out = cloneList(list)
	target := &out[idx]
	if fields := SanitizeFields(patch.Fields); len(fields) > 0 {
		if target.Fields == nil {
			target.Fields = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			target.Fields[k] = v
		}
	}

	if patch.IsPrimary != nil {
		if *patch.IsPrimary {
			for i := range out {
				out[i].IsPrimary = i == idx
			}
		} else {
			target.IsPrimary = false
		}
	}

	repaired = repair(out)
	return out, repaired, nil
}

// Remove drops the address with the given id. When the remaining list has no
// primary the first one is promoted and repaired is true.
func Remove(list []Address, id string) (out []Address, repaired bool, err error) {
	idx := IndexOf(list, id)
	if idx < 0 {
		return nil, false, apperrors.NotFound("address", id)
	}

	out = make([]Address, 0, len(list)-1)
	for i, a := range list {
		if i == idx {
			continue
		}
		out = append(out, a.Clone())
	}

	repaired = repair(out)
	return out, repaired, nil
}

// SetPrimary flags exactly the address with the given id as primary.
// Applying it twice yields the same list.
func SetPrimary(list []Address, id string) ([]Address, error) {
	if IndexOf(list, id) < 0 {
		return nil, apperrors.NotFound("address", id)
	}

	out := cloneList(list)
	for i := range out {
		out[i].IsPrimary = out[i].ID == id
	}
	return out, nil
}

// Normalize returns a copy of list that satisfies the single-primary rule:
// the first flagged address stays primary and the rest are demoted, or the
// first address is promoted when none is flagged. Used for imported lists,
// which may carry any combination of flags.
func Normalize(list []Address) (out []Address, changed bool) {
	out = cloneList(list)
	seen := false
	for i := range out {
		if !out[i].IsPrimary {
			continue
		}
		if seen {
			out[i].IsPrimary = false
			changed = true
		}
		seen = true
	}
	if repair(out) {
		changed = true
	}
	return out, changed
}

func repair(list []Address) bool {
	if len(list) == 0 || PrimaryCount(list) > 0 {
		return false
	}
	list[0].IsPrimary = true
	return true
}

func cloneList(list []Address) []Address {
	out := make([]Address, len(list))
	for i, a := range list {
		out[i] = a.Clone()
	}
	return out
}
