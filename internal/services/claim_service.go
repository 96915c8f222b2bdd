package services

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/metrics"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/workflow"
)

// ClaimAPI is the part of the claims API the claim service uses
type ClaimAPI interface {
	ListClaims(ctx context.Context, ts apiclient.TokenSource, filter models.ClaimFilter) (*models.Page[models.Claim], error)
	GetClaim(ctx context.Context, ts apiclient.TokenSource, id int) (*models.Claim, error)
	RefreshClaim(ctx context.Context, ts apiclient.TokenSource, id int) (*models.Claim, error)
	CreateClaim(ctx context.Context, ts apiclient.TokenSource, in models.CreateClaimInput) (*models.Claim, error)
	ChangeState(ctx context.Context, ts apiclient.TokenSource, id int, form *apiclient.Form) (*models.Claim, error)
	UpdateClaim(ctx context.Context, ts apiclient.TokenSource, id int, form *apiclient.Form) (*models.Claim, error)
	DownloadFile(ctx context.Context, ts apiclient.TokenSource, id int, filename string) ([]byte, string, error)
}

// ClaimService runs the claim workflow against the claims API
type ClaimService struct {
	api     ClaimAPI
	metrics *metrics.Metrics
}

// NewClaimService creates a new claim service
func NewClaimService(api ClaimAPI, m *metrics.Metrics) *ClaimService {
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &ClaimService{api: api, metrics: m}
}

// List returns one page of claims
func (s *ClaimService) List(ctx context.Context, ts apiclient.TokenSource, filter models.ClaimFilter) (*models.Page[models.Claim], error) {
	return s.api.ListClaims(ctx, ts, filter)
}

// Get returns a claim, possibly from the query cache
func (s *ClaimService) Get(ctx context.Context, ts apiclient.TokenSource, id int) (*models.Claim, error) {
	return s.api.GetClaim(ctx, ts, id)
}

// Fresh returns the claim as the claims API has it right now. Transitions
// are guarded against this copy.
func (s *ClaimService) Fresh(ctx context.Context, ts apiclient.TokenSource, id int) (*models.Claim, error) {
	return s.api.RefreshClaim(ctx, ts, id)
}

// Create files a new claim
func (s *ClaimService) Create(ctx context.Context, ts apiclient.TokenSource, in models.CreateClaimInput) (*models.Claim, error) {
	if in.Type == "" {
		in.Type = models.KindClaim
	}
	if err := workflow.ValidateCreate(in); err != nil {
		return nil, err
	}

	claim, err := s.api.CreateClaim(ctx, ts, in)
	s.metrics.Observe("claims.create", err)
	if err != nil {
		return nil, err
	}

	log.Info().Int("claim_id", claim.ID).Int("tracker", claim.Tracker).Msg("Claim created")
	return claim, nil
}

// Form describes what the operator may do with the claim
func (s *ClaimService) Form(ctx context.Context, ts apiclient.TokenSource, id int) (workflow.Form, error) {
	claim, err := s.api.GetClaim(ctx, ts, id)
	if err != nil {
		return workflow.Form{}, err
	}
	return workflow.FormFor(claim), nil
}

// Download returns a stored attachment
func (s *ClaimService) Download(ctx context.Context, ts apiclient.TokenSource, id int, filename string) ([]byte, string, error) {
	return s.api.DownloadFile(ctx, ts, id, filename)
}

// Take moves a pending claim into review. On success claim holds the
// updated state.
func (s *ClaimService) Take(ctx context.Context, ts apiclient.TokenSource, claim *models.Claim, req workflow.TakeRequest) error {
	return s.transition(ctx, ts, claim, workflow.ActionTake, req.Validate, func(form *apiclient.Form) {
		form.Set("changed_by_id", strconv.Itoa(req.ReviewerID))
	})
}

// Approve closes a claim under review as approved
func (s *ClaimService) Approve(ctx context.Context, ts apiclient.TokenSource, claim *models.Claim, req workflow.ApproveRequest) error {
	return s.transition(ctx, ts, claim, workflow.ActionApprove, req.Validate, func(form *apiclient.Form) {
		form.Set("changed_by_id", strconv.Itoa(req.ReviewerID))
		form.Set("new_claim_number", req.ClaimNumber)
		form.Set("discard_doc", req.DiscardDoc)
		form.Set("observations", req.Observations)
		addFile(form, models.CategoryClaimFile, req.ClaimFile)
		addFile(form, models.CategoryCreditMemoFile, req.CreditMemoFile)
		addFile(form, models.CategoryObservationsFile, req.ObservationsFile)
	})
}

// Reject closes a claim under review as rejected
func (s *ClaimService) Reject(ctx context.Context, ts apiclient.TokenSource, claim *models.Claim, req workflow.RejectRequest) error {
	return s.transition(ctx, ts, claim, workflow.ActionReject, req.Validate, func(form *apiclient.Form) {
		form.Set("changed_by_id", strconv.Itoa(req.ReviewerID))
		form.Set("reject_reason", req.Reason)
		addFile(form, models.CategoryObservationsFile, req.ObservationsFile)
	})
}

// transition guards action against the claim's status, validates the
// request and posts the change. A rejected transition sends nothing and
// leaves claim untouched.
func (s *ClaimService) transition(
	ctx context.Context,
	ts apiclient.TokenSource,
	claim *models.Claim,
	action workflow.Action,
	validate func() error,
	fill func(form *apiclient.Form),
) error {
	next, err := workflow.Transition(claim.Status, action)
	if err != nil {
		s.metrics.IncrementCounter("claims.rejected_transition")
		log.Debug().Int("claim_id", claim.ID).Str("status", string(claim.Status)).Str("action", string(action)).Msg("Transition not allowed")
		return err
	}
	if err := validate(); err != nil {
		return err
	}

	form := &apiclient.Form{}
	form.Set("new_state", string(next))
	fill(form)

	done := s.metrics.Time("claims." + string(action))
	updated, err := s.api.ChangeState(ctx, ts, claim.ID, form)
	done()
	s.metrics.Observe("claims.transition", err)
	if err != nil {
		return errors.Wrapf(err, "failed to %s claim %d", action, claim.ID)
	}

	from := claim.Status
	if updated != nil {
		*claim = *updated
	}
	claim.Status = next

	log.Info().
		Int("claim_id", claim.ID).
		Str("action", string(action)).
		Str("from", string(from)).
		Str("to", string(next)).
		Msg("Claim transitioned")
	return nil
}

// Edit changes fields and attachments of a claim that is not terminal
func (s *ClaimService) Edit(ctx context.Context, ts apiclient.TokenSource, claim *models.Claim, req workflow.EditRequest) error {
	if _, err := workflow.Transition(claim.Status, workflow.ActionEdit); err != nil {
		s.metrics.IncrementCounter("claims.rejected_transition")
		return err
	}
	if err := req.Validate(claim); err != nil {
		return err
	}

	form, err := EditForm(req)
	if err != nil {
		return err
	}

	done := s.metrics.Time("claims.edit")
	updated, err := s.api.UpdateClaim(ctx, ts, claim.ID, form)
	done()
	s.metrics.Observe("claims.edit", err)
	if err != nil {
		return errors.Wrapf(err, "failed to edit claim %d", claim.ID)
	}

	status := claim.Status
	if updated != nil {
		*claim = *updated
	}
	if claim.Status == "" {
		claim.Status = status
	}

	log.Info().Int("claim_id", claim.ID).Int("fields", form.Len()).Msg("Claim updated")
	return nil
}

type attachmentMetadata struct {
	RemoveIDs []int `json:"remove_ids"`
}

// EditForm encodes an edit as the update-claim multipart body. Each
// category with a delta gets its new files under the category field and a
// <category>_metadata part naming the attachments to drop.
func EditForm(req workflow.EditRequest) (*apiclient.Form, error) {
	form := &apiclient.Form{}
	if req.ClaimType != nil {
		form.Set("claim_type", string(*req.ClaimType))
	}
	if req.Description != nil {
		form.Set("description", *req.Description)
	}
	if req.Observations != nil {
		form.Set("observations", *req.Observations)
	}
	if req.DiscardDoc != nil {
		form.Set("discard_doc", *req.DiscardDoc)
	}
	if req.ClaimNumber != nil {
		form.Set("claim_number", *req.ClaimNumber)
	}
	if req.Products != nil {
		data, err := json.Marshal(req.Products)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode products")
		}
		form.Set("claim_products", string(data))
	}

	cats := make([]string, 0, len(req.Deltas))
	for cat, delta := range req.Deltas {
		if !delta.Empty() {
			cats = append(cats, string(cat))
		}
	}
	sort.Strings(cats)

	for _, name := range cats {
		delta := req.Deltas[models.Category(name)]
		meta, err := json.Marshal(attachmentMetadata{RemoveIDs: delta.RemovalList()})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode %s metadata", name)
		}
		form.Set(name+"_metadata", string(meta))
		for _, f := range delta.Add {
			form.AddFile(name, f.Name, f.Data)
		}
	}
	return form, nil
}

func addFile(form *apiclient.Form, cat models.Category, f *workflow.File) {
	if f != nil {
		form.AddFile(string(cat), f.Name, f.Data)
	}
}
