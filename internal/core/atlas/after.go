// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package atlas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// After is the set of summaries a tag instance must be ordered after.
//
// It is stored as a JSON array of UUIDs. The zero value is an empty set.
type After struct {
	ids map[uuid.UUID]struct{}
}

// NewAfter builds a set from the given summary ids.
func NewAfter(ids ...uuid.UUID) After {
	set := After{}
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Add inserts a summary id.
func (a *After) Add(id uuid.UUID) {
	if a.ids == nil {
		a.ids = make(map[uuid.UUID]struct{})
	}
	a.ids[id] = struct{}{}
}

// Contains reports whether id is a member.
func (a After) Contains(id uuid.UUID) bool {
	_, ok := a.ids[id]
	return ok
}

// Len returns the number of members.
func (a After) Len() int { return len(a.ids) }

// Empty reports whether the set has no members.
func (a After) Empty() bool { return len(a.ids) == 0 }

// IDs returns the members in ascending byte order.
func (a After) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(a.ids))
	for id := range a.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// Without returns a copy of the set minus id.
func (a After) Without(id uuid.UUID) After {
	out := After{}
	for member := range a.ids {
		if member != id {
			out.Add(member)
		}
	}
	return out
}

// MarshalJSON encodes the set as a sorted JSON array.
func (a After) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.IDs())
}

// UnmarshalJSON decodes a JSON array of UUID strings. A JSON null yields an
// empty set.
func (a *After) UnmarshalJSON(data []byte) error {
	a.ids = nil
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("atlas: after must be an array of ids: %w", err)
	}

	for _, value := range raw {
		id, err := uuid.Parse(value)
		if err != nil {
			return fmt.Errorf("atlas: invalid after id %q: %w", value, err)
		}
		a.Add(id)
	}
	return nil
}

// Column returns the value to bind for the nullable JSONB column.
func (a After) Column() (*string, error) {
	if a.Empty() {
		return nil, nil
	}
	encoded, err := a.MarshalJSON()
	if err != nil {
		return nil, err
	}
	value := string(encoded)
	return &value, nil
}

// ParseAfterColumn decodes the nullable JSONB column.
func ParseAfterColumn(raw []byte) (After, error) {
	var after After
	if len(raw) == 0 {
		return after, nil
	}
	err := after.UnmarshalJSON(raw)
	return after, err
}
