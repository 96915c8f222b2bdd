package models

import (
	"encoding/json"
)

// Category names an attachment slot on a claim. The value doubles as the
// multipart field name the claims API expects.
type Category string

// Single document slots
const (
	CategoryClaimFile        Category = "claim_file"
	CategoryCreditMemoFile   Category = "credit_memo_file"
	CategoryObservationsFile Category = "observations_file"
)

// Photo list slots
const (
	CategoryContainerClosed    Category = "photos_container_closed"
	CategoryContainerOneOpen   Category = "photos_container_one_open"
	CategoryContainerTwoOpen   Category = "photos_container_two_open"
	CategoryDuringUnload       Category = "photos_during_unload"
	CategoryPalletDamage       Category = "photos_pallet_damage"
	CategoryDamagedProductBase Category = "photos_damaged_product_base"
	CategoryDamagedProductDots Category = "photos_damaged_product_dots"
	CategoryDamagedBoxes       Category = "photos_damaged_boxes"
	CategoryGroupedBadProduct  Category = "photos_grouped_bad_product"
	CategoryRepalletized       Category = "photos_repalletized"
)

// MaxPhotosPerCategory is the upload limit for each photo slot
const MaxPhotosPerCategory = 5

// DocumentCategories lists the single file slots in display order
var DocumentCategories = []Category{
	CategoryClaimFile,
	CategoryCreditMemoFile,
	CategoryObservationsFile,
}

// PhotoCategories lists the photo slots in display order
var PhotoCategories = []Category{
	CategoryContainerClosed,
	CategoryContainerOneOpen,
	CategoryContainerTwoOpen,
	CategoryDuringUnload,
	CategoryPalletDamage,
	CategoryDamagedProductBase,
	CategoryDamagedProductDots,
	CategoryDamagedBoxes,
	CategoryGroupedBadProduct,
	CategoryRepalletized,
}

var categoryLabels = map[Category]string{
	CategoryClaimFile:          "Archivo de reclamo",
	CategoryCreditMemoFile:     "Nota de crédito",
	CategoryObservationsFile:   "Archivo de observaciones",
	CategoryContainerClosed:    "Contenedor cerrado",
	CategoryContainerOneOpen:   "Contenedor con una puerta abierta",
	CategoryContainerTwoOpen:   "Contenedor con dos puertas abiertas",
	CategoryDuringUnload:       "Durante la descarga",
	CategoryPalletDamage:       "Tarima dañada",
	CategoryDamagedProductBase: "Base de producto dañado",
	CategoryDamagedProductDots: "Puntos de producto dañado",
	CategoryDamagedBoxes:       "Cajas dañadas",
	CategoryGroupedBadProduct:  "Producto en mal estado agrupado",
	CategoryRepalletized:       "Producto repaletizado",
}

// Valid reports whether c is a known slot
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// IsPhoto reports whether c holds a list of photos
func (c Category) IsPhoto() bool {
	for _, p := range PhotoCategories {
		if p == c {
			return true
		}
	}
	return false
}

// MaxFiles is the number of files the slot can hold
func (c Category) MaxFiles() int {
	if c.IsPhoto() {
		return MaxPhotosPerCategory
	}
	return 1
}

// Label returns the display name of the slot
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// AllCategories returns document slots followed by photo slots
func AllCategories() []Category {
	all := make([]Category, 0, len(DocumentCategories)+len(PhotoCategories))
	all = append(all, DocumentCategories...)
	return append(all, PhotoCategories...)
}

// PhotoSet holds the photo lists of a claim keyed by slot
type PhotoSet map[Category][]Attachment

// Attachments returns the attachments currently stored in a slot
func (c *Claim) Attachments(cat Category) []Attachment {
	switch cat {
	case CategoryClaimFile:
		return single(c.ClaimFile)
	case CategoryCreditMemoFile:
		return single(c.CreditMemoFile)
	case CategoryObservationsFile:
		return single(c.ObservationsFile)
	}
	return c.Photos[cat]
}

func single(a *Attachment) []Attachment {
	if a == nil {
		return nil
	}
	return []Attachment{*a}
}

type claimAlias Claim

// UnmarshalJSON decodes the flat claim document, collecting the photo
// list fields into Photos.
func (c *Claim) UnmarshalJSON(data []byte) error {
	var alias claimAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	photos := PhotoSet{}
	for _, cat := range PhotoCategories {
		field, ok := raw[string(cat)]
		if !ok {
			continue
		}
		var list []Attachment
		if err := json.Unmarshal(field, &list); err != nil {
			return err
		}
		if len(list) > 0 {
			photos[cat] = list
		}
	}

	*c = Claim(alias)
	c.Photos = photos
	return nil
}

// MarshalJSON writes the claim back in the flat document shape
func (c Claim) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(claimAlias(c))
	if err != nil {
		return nil, err
	}
	if len(c.Photos) == 0 {
		return base, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(base, &doc); err != nil {
		return nil, err
	}
	for cat, list := range c.Photos {
		encoded, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		doc[string(cat)] = encoded
	}
	return json.Marshal(doc)
}
