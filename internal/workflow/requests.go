package workflow

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/agchavez/interlace/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"form", "json"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
}

// ValidateCreate checks the body of a new claim
func ValidateCreate(in models.CreateClaimInput) error {
	return structErrors(in).orNil()
}

// File is an upload held in memory until it is sent upstream
type File struct {
	Name string
	Data []byte
}

// ContentType sniffs the MIME type from the file contents
func (f File) ContentType() string {
	return mimetype.Detect(f.Data).String()
}

// TakeRequest assigns a pending claim to a reviewer
type TakeRequest struct {
	ReviewerID int `form:"changed_by_id" validate:"gt=0"`
}

// ApproveRequest closes a claim under review as approved
type ApproveRequest struct {
	ReviewerID       int    `form:"changed_by_id" validate:"gt=0"`
	ClaimNumber      string `form:"new_claim_number" validate:"required,max=100"`
	DiscardDoc       string `form:"discard_doc" validate:"required,max=100"`
	Observations     string `form:"observations" validate:"required"`
	ClaimFile        *File  `form:"claim_file"`
	CreditMemoFile   *File  `form:"credit_memo_file"`
	ObservationsFile *File  `form:"observations_file"`
}

// RejectRequest closes a claim under review as rejected
type RejectRequest struct {
	ReviewerID       int    `form:"changed_by_id" validate:"gt=0"`
	Reason           string `form:"reject_reason" validate:"required"`
	ObservationsFile *File  `form:"observations_file"`
}

// EditRequest changes fields and attachments without moving the status.
// Nil pointers and a nil Products slice mean "unchanged".
type EditRequest struct {
	ClaimType    *models.ClaimType                   `form:"claim_type" validate:"omitempty,oneof=FALTANTE SOBRANTE DAÑOS_CALIDAD_TRANSPORTE"`
	Description  *string                             `form:"description"`
	Observations *string                             `form:"observations"`
	DiscardDoc   *string                             `form:"discard_doc" validate:"omitempty,max=100"`
	ClaimNumber  *string                             `form:"claim_number" validate:"omitempty,max=100"`
	Products     []models.ClaimProduct               `form:"claim_products" validate:"omitempty,dive"`
	Deltas       map[models.Category]AttachmentDelta `form:"-"`
}

// Empty reports whether the edit changes nothing
func (r EditRequest) Empty() bool {
	if r.ClaimType != nil || r.Description != nil || r.Observations != nil ||
		r.DiscardDoc != nil || r.ClaimNumber != nil || r.Products != nil {
		return false
	}
	for _, d := range r.Deltas {
		if !d.Empty() {
			return false
		}
	}
	return true
}

// InvalidRequest carries per field messages for a request that failed
// validation before reaching the claims API.
type InvalidRequest struct {
	Fields map[string][]string
}

func (e *InvalidRequest) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func (e *InvalidRequest) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *InvalidRequest) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Validate checks the struct tags of a request and the content of any
// attached documents.
func (r TakeRequest) Validate() error {
	return structErrors(r).orNil()
}

// Validate checks required fields and attached documents
func (r ApproveRequest) Validate() error {
	inv := structErrors(r)
	checkDocument(inv, models.CategoryClaimFile, r.ClaimFile)
	checkDocument(inv, models.CategoryCreditMemoFile, r.CreditMemoFile)
	checkDocument(inv, models.CategoryObservationsFile, r.ObservationsFile)
	return inv.orNil()
}

// Validate checks required fields and the optional observations file
func (r RejectRequest) Validate() error {
	inv := structErrors(r)
	checkDocument(inv, models.CategoryObservationsFile, r.ObservationsFile)
	return inv.orNil()
}

// Validate checks the scalar fields and every attachment delta against the
// claim's current attachments.
func (r EditRequest) Validate(claim *models.Claim) error {
	inv := structErrors(r)
	if r.Empty() {
		inv.add("non_field_errors", "no changes to submit")
	}
	for cat, delta := range r.Deltas {
		delta.validate(inv, claim, cat)
	}
	return inv.orNil()
}

func structErrors(s interface{}) *InvalidRequest {
	inv := &InvalidRequest{}
	err := validate.Struct(s)
	if err == nil {
		return inv
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		inv.add("non_field_errors", err.Error())
		return inv
	}
	for _, fe := range verrs {
		inv.add(fieldName(fe), tagMessage(fe))
	}
	return inv
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "gt":
		return "A reviewer is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	}
	return fmt.Sprintf("failed on %s", fe.Tag())
}

var documentTypes = []string{
	"application/pdf",
	"image/",
	"application/vnd.openxmlformats-officedocument",
	"application/msword",
	"application/vnd.ms-excel",
}

func checkDocument(inv *InvalidRequest, cat models.Category, f *File) {
	if f == nil {
		return
	}
	checkFile(inv, cat, *f)
}

func checkFile(inv *InvalidRequest, cat models.Category, f File) {
	if len(f.Data) == 0 {
		inv.add(string(cat), fmt.Sprintf("%s is empty.", f.Name))
		return
	}
	ct := f.ContentType()
	if cat.IsPhoto() {
		if !strings.HasPrefix(ct, "image/") {
			inv.add(string(cat), fmt.Sprintf("%s is not an image (%s).", f.Name, ct))
		}
		return
	}
	for _, prefix := range documentTypes {
		if strings.HasPrefix(ct, prefix) {
			return
		}
	}
	inv.add(string(cat), fmt.Sprintf("%s has an unsupported file type (%s).", f.Name, ct))
}
