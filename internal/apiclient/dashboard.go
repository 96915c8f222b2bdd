package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/agchavez/interlace/internal/models"
)

// Dashboard returns the claim counters for the filter
func (c *Client) Dashboard(ctx context.Context, ts TokenSource, f models.DashboardFilter) (*models.Dashboard, error) {
	q := url.Values{}
	if f.DateFrom != "" {
		q.Set("date_after", f.DateFrom)
	}
	if f.DateTo != "" {
		q.Set("date_before", f.DateTo)
	}
	if f.DistributorCenter != "" {
		q.Set("distributor_center", f.DistributorCenter)
	}

	var d models.Dashboard
	if err := c.getJSON(ctx, ts, "/dashboard/", q, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListTrackers returns one page of shipment trackers
func (c *Client) ListTrackers(ctx context.Context, ts TokenSource, search string, limit, offset int) (*models.Page[models.Tracker], error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var page models.Page[models.Tracker]
	if err := c.getJSON(ctx, ts, "/tracker/", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetTracker returns a single tracker
func (c *Client) GetTracker(ctx context.Context, ts TokenSource, id int) (*models.Tracker, error) {
	var t models.Tracker
	if err := c.getJSON(ctx, ts, fmt.Sprintf("/tracker/%d/", id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
