package models

import (
	"time"
)

// ClaimStatus is the workflow state of a claim as the claims API names it
type ClaimStatus string

// Claim statuses
const (
	StatusPending  ClaimStatus = "PENDIENTE"
	StatusInReview ClaimStatus = "EN_REVISION"
	StatusRejected ClaimStatus = "RECHAZADO"
	StatusApproved ClaimStatus = "APROBADO"
)

// ClaimType classifies the discrepancy being reported
type ClaimType string

// Claim types
const (
	ClaimTypeMissing ClaimType = "FALTANTE"
	ClaimTypeExcess  ClaimType = "SOBRANTE"
	ClaimTypeDamage  ClaimType = "DAÑOS_CALIDAD_TRANSPORTE"
)

// ClaimKind separates standard claims from local quality alerts
type ClaimKind string

// Claim kinds
const (
	KindClaim        ClaimKind = "CLAIM"
	KindQualityAlert ClaimKind = "ALERT_QUALITY"
)

// Claim is a filed discrepancy or quality report against a tracked shipment
type Claim struct {
	ID                int            `json:"id"`
	ClaimType         ClaimType      `json:"claim_type"`
	Type              ClaimKind      `json:"type"`
	Status            ClaimStatus    `json:"status"`
	Tracker           int            `json:"tracker"`
	AssignedTo        *UserRef       `json:"assigned_to"`
	DistributorCenter string         `json:"distributor_center,omitempty"`
	ClaimNumber       string         `json:"claim_number"`
	DiscardDoc        string         `json:"discard_doc"`
	Observations      string         `json:"observations"`
	Reason            string         `json:"reason"`
	Description       string         `json:"description"`
	ClaimFile         *Attachment    `json:"claim_file"`
	CreditMemoFile    *Attachment    `json:"credit_memo_file"`
	ObservationsFile  *Attachment    `json:"observations_file"`
	Photos            PhotoSet       `json:"-"`
	Products          []ClaimProduct `json:"claim_products"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// IsQualityAlert reports whether the claim is a local quality alert
func (c *Claim) IsQualityAlert() bool {
	return c.Type == KindQualityAlert
}

// Label returns the user facing name of the claim kind
func (c *Claim) Label() string {
	if c.IsQualityAlert() {
		return "Alerta de calidad local"
	}
	return "Reclamo"
}

// ClaimProduct is a single line item on a claim
type ClaimProduct struct {
	SapCode     string    `json:"sap_code"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	Batch       string    `json:"batch"`
	CreatedAt   time.Time `json:"created_at"`
}

// Attachment is a file stored by the claims API for a claim
type Attachment struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	File       string    `json:"file"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// UserRef is the compact user shape embedded in claims
type UserRef struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FullName joins first and last name, falling back to the username
func (u *UserRef) FullName() string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}

// CreateClaimInput is the body sent when filing a claim
type CreateClaimInput struct {
	Tracker      int            `json:"tracker" binding:"required" validate:"required,gt=0"`
	ClaimType    ClaimType      `json:"claim_type" binding:"required" validate:"required,oneof=FALTANTE SOBRANTE DAÑOS_CALIDAD_TRANSPORTE"`
	Type         ClaimKind      `json:"type" validate:"omitempty,oneof=CLAIM ALERT_QUALITY"`
	Description  string         `json:"description"`
	Observations string         `json:"observations"`
	Products     []ClaimProduct `json:"claim_products" validate:"dive"`
}

// ClaimFilter holds the list query parameters understood by the claims API
type ClaimFilter struct {
	Search            string
	Status            ClaimStatus
	ClaimType         ClaimType
	Type              ClaimKind
	DistributorCenter string
	Tracker           int
	Limit             int
	Offset            int
}

// Page is the paginated envelope returned by list endpoints
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}
