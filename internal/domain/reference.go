package domain

import "github.com/google/uuid"

// ReferenceCategory names a family of reference entities rows are resolved against.
type ReferenceCategory string

const (
	ReferenceCategoryRig     ReferenceCategory = "rig"
	ReferenceCategorySite    ReferenceCategory = "site"
	ReferenceCategoryProject ReferenceCategory = "project"
)

// ReferenceCategories lists every category in reporting order.
var ReferenceCategories = []ReferenceCategory{
	ReferenceCategoryRig,
	ReferenceCategorySite,
	ReferenceCategoryProject,
}

// ReferenceEntity is a valid named entity owned by the reference-data directory.
type ReferenceEntity struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
