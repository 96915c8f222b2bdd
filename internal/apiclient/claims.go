package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/agchavez/interlace/internal/models"
)

func claimPath(id int) string {
	return fmt.Sprintf("/claim/%d/", id)
}

func claimQuery(f models.ClaimFilter) url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.ClaimType != "" {
		q.Set("claim_type", string(f.ClaimType))
	}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.DistributorCenter != "" {
		q.Set("distributor_center", f.DistributorCenter)
	}
	if f.Tracker > 0 {
		q.Set("tracker", strconv.Itoa(f.Tracker))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

// ListClaims returns one page of claims matching the filter
func (c *Client) ListClaims(ctx context.Context, ts TokenSource, filter models.ClaimFilter) (*models.Page[models.Claim], error) {
	var page models.Page[models.Claim]
	if err := c.getJSON(ctx, ts, "/claim/", claimQuery(filter), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetClaim returns a claim, served from the query cache when possible
func (c *Client) GetClaim(ctx context.Context, ts TokenSource, id int) (*models.Claim, error) {
	var claim models.Claim
	if err := c.getJSON(ctx, ts, claimPath(id), nil, &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

// RefreshClaim drops any cached copy of the claim and fetches it again
func (c *Client) RefreshClaim(ctx context.Context, ts TokenSource, id int) (*models.Claim, error) {
	c.invalidate(ctx, claimPath(id))
	return c.GetClaim(ctx, ts, id)
}

// CreateClaim files a new claim. The claims API starts it as pending.
func (c *Client) CreateClaim(ctx context.Context, ts TokenSource, in models.CreateClaimInput) (*models.Claim, error) {
	tok, err := c.token(ctx, ts)
	if err != nil {
		return nil, err
	}

	var claim models.Claim
	if err := c.sendJSON(ctx, tok, http.MethodPost, "/claim/", in, &claim); err != nil {
		return nil, err
	}
	c.invalidate(ctx, "/claim/", "/dashboard/")
	return &claim, nil
}

// ChangeState posts a status transition for a claim
func (c *Client) ChangeState(ctx context.Context, ts TokenSource, id int, form *Form) (*models.Claim, error) {
	return c.sendForm(ctx, ts, http.MethodPost, id, claimPath(id)+"change-state/", form)
}

// UpdateClaim patches fields and attachments of a claim
func (c *Client) UpdateClaim(ctx context.Context, ts TokenSource, id int, form *Form) (*models.Claim, error) {
	return c.sendForm(ctx, ts, http.MethodPatch, id, claimPath(id)+"update-claim/", form)
}

func (c *Client) sendForm(ctx context.Context, ts TokenSource, method string, id int, path string, form *Form) (*models.Claim, error) {
	tok, err := c.token(ctx, ts)
	if err != nil {
		return nil, err
	}

	body, contentType, err := form.encode()
	if err != nil {
		return nil, err
	}

	resp, _, err := c.send(ctx, request{method: method, path: path, body: body, contentType: contentType, token: tok})
	if err != nil {
		return nil, err
	}

	// Any accepted mutation changes list membership and counters too.
	c.invalidate(ctx, claimPath(id), "/claim/", "/dashboard/")

	var claim models.Claim
	if err := decodeInto(resp, &claim, path); err != nil {
		return nil, err
	}
	if claim.ID == 0 {
		return nil, nil
	}
	return &claim, nil
}

// DownloadFile fetches a stored attachment of a claim
func (c *Client) DownloadFile(ctx context.Context, ts TokenSource, id int, filename string) ([]byte, string, error) {
	if filename == "" {
		return nil, "", errors.New("filename is required")
	}
	tok, err := c.token(ctx, ts)
	if err != nil {
		return nil, "", err
	}

	q := url.Values{}
	q.Set("filename", filename)
	data, header, err := c.send(ctx, request{method: http.MethodGet, path: claimPath(id) + "download-file/", query: q, token: tok})
	if err != nil {
		return nil, "", err
	}
	return data, header.Get("Content-Type"), nil
}
