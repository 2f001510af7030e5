package models

import (
	"strings"
	"time"
)

// EntityKind names a dependent entity table
type EntityKind string

const (
	EntityKindOffering      EntityKind = "offering"
	EntityKindContract      EntityKind = "contract"
	EntityKindDemo          EntityKind = "demo"
	EntityKindOwner         EntityKind = "owner"
	EntityKindContact       EntityKind = "contact"
	EntityKindDocumentLink  EntityKind = "document_link"
	EntityKindOrgAssignment EntityKind = "org_assignment"
)

// DependentKinds lists every non-offering entity kind
var DependentKinds = []EntityKind{
	EntityKindContract,
	EntityKindDemo,
	EntityKindOwner,
	EntityKindContact,
	EntityKindDocumentLink,
	EntityKindOrgAssignment,
}

// OfferingScoped reports whether entities of this kind may hang off an offering
func (k EntityKind) OfferingScoped() bool {
	switch k {
	case EntityKindContract, EntityKindDemo, EntityKindOwner, EntityKindContact:
		return true
	}
	return false
}

// OfferingStatus is the lifecycle state of an offering
type OfferingStatus string

const (
	OfferingStatusActive   OfferingStatus = "active"
	OfferingStatusArchived OfferingStatus = "archived"
)

// Offering is a product or service sold by a vendor
type Offering struct {
	ID                   string         `json:"id" db:"id"`
	VendorID             string         `json:"vendor_id" db:"vendor_id"`
	Name                 string         `json:"name" db:"name"`
	Status               OfferingStatus `json:"status" db:"status"`
	MergedIntoOfferingID *string        `json:"merged_into_offering_id,omitempty" db:"merged_into_offering_id"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at" db:"updated_at"`
}

// NormalizedName is the case and whitespace insensitive identity used to detect collisions
func (o Offering) NormalizedName() string {
	return NormalizeName(o.Name)
}

// NormalizeName lowercases and collapses internal whitespace
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Dependent is a contract, demo, owner, contact, document link or org assignment
type Dependent struct {
	Kind       EntityKind `json:"kind" db:"kind"`
	ID         string     `json:"id" db:"id"`
	VendorID   string     `json:"vendor_id" db:"vendor_id"`
	OfferingID *string    `json:"offering_id,omitempty" db:"offering_id"`
	Label      string     `json:"label" db:"label"`
}

// IsVendorLevel reports whether the entity hangs directly off the vendor
func (d Dependent) IsVendorLevel() bool {
	return d.OfferingID == nil
}

// EntityGraph is a vendor together with everything it owns
type EntityGraph struct {
	Vendor     VendorRecord `json:"vendor"`
	Offerings  []Offering   `json:"offerings"`
	Dependents []Dependent  `json:"dependents"`
}

// ActiveOfferings filters out archived offerings
func (g EntityGraph) ActiveOfferings() []Offering {
	out := make([]Offering, 0, len(g.Offerings))
	for _, o := range g.Offerings {
		if o.Status != OfferingStatusArchived {
			out = append(out, o)
		}
	}
	return out
}

// Offering looks up an offering by id
func (g EntityGraph) Offering(id string) (Offering, bool) {
	for _, o := range g.Offerings {
		if o.ID == id {
			return o, true
		}
	}
	return Offering{}, false
}

// DependentsOf returns the dependents attached to an offering
func (g EntityGraph) DependentsOf(offeringID string) []Dependent {
	var out []Dependent
	for _, d := range g.Dependents {
		if d.OfferingID != nil && *d.OfferingID == offeringID {
			out = append(out, d)
		}
	}
	return out
}
