// Package models contains domain types for ekaya-grounding.
package models

import (
	"fmt"
	"strings"
)

// ============================================================================
// Entity Type
// ============================================================================

// EntityType is the coarse business classification of an entity-bearing column.
// Used to disambiguate identically-named values stored in different tables.
type EntityType string

const (
	EntityTypeClient   EntityType = "client"
	EntityTypeCompany  EntityType = "company"
	EntityTypeProject  EntityType = "project"
	EntityTypeProduct  EntityType = "product"
	EntityTypePerson   EntityType = "person"
	EntityTypeLocation EntityType = "location"
	EntityTypeUnknown  EntityType = "unknown"
)

// ValidEntityTypes contains all valid entity type values.
var ValidEntityTypes = []EntityType{
	EntityTypeClient,
	EntityTypeCompany,
	EntityTypeProject,
	EntityTypeProduct,
	EntityTypePerson,
	EntityTypeLocation,
	EntityTypeUnknown,
}

// ParseEntityType maps a free-form type name onto a known EntityType.
// Unrecognized names map to EntityTypeUnknown.
func ParseEntityType(s string) EntityType {
	candidate := EntityType(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range ValidEntityTypes {
		if v == candidate {
			return v
		}
	}
	return EntityTypeUnknown
}

// String returns the string representation of an EntityType.
func (t EntityType) String() string {
	return string(t)
}

// ============================================================================
// Value Entry
// ============================================================================

// EntryKey identifies a ValueEntry. The same canonical value may be stored in
// several columns (a client and a company both named "Acme"), so the column
// location is part of the identity.
type EntryKey struct {
	Table          string `json:"table"`
	Column         string `json:"column"`
	CanonicalValue string `json:"canonical_value"`
}

// String renders the key as table.column=value for logs.
func (k EntryKey) String() string {
	return fmt.Sprintf("%s.%s=%s", k.Table, k.Column, k.CanonicalValue)
}

// ValueEntry is one distinct canonical value of an entity-bearing column,
// together with every textual form it might appear as in a question.
// Entries are created once per index build and must be treated as read-only.
type ValueEntry struct {
	CanonicalValue string     `json:"canonical_value"` // Exact string stored in the source column
	Table          string     `json:"table"`
	Column         string     `json:"column"`
	EntityType     EntityType `json:"entity_type"`
	Frequency      int64      `json:"frequency"`  // Row count for this value, used as a tie-break
	Variations     []string   `json:"variations"` // Sorted, unique
}

// Key returns the identity of the entry.
func (e ValueEntry) Key() EntryKey {
	return EntryKey{Table: e.Table, Column: e.Column, CanonicalValue: e.CanonicalValue}
}

// Location returns "table.column".
func (e ValueEntry) Location() string {
	return e.Table + "." + e.Column
}

// HasVariation reports whether v is one of the entry's variations, ignoring case.
func (e ValueEntry) HasVariation(v string) bool {
	for _, variation := range e.Variations {
		if strings.EqualFold(variation, v) {
			return true
		}
	}
	return false
}
