package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/agchavez/interlace/internal/models"
)

// ListNotifications returns the unread notifications of the operator. The
// endpoint is never cached since the live channel drives freshness.
func (c *Client) ListNotifications(ctx context.Context, ts TokenSource) ([]models.Notification, error) {
	tok, err := c.token(ctx, ts)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("read", "false")
	body, _, err := c.send(ctx, request{method: http.MethodGet, path: "/notificacion/", query: q, token: tok})
	if err != nil {
		return nil, err
	}

	// The endpoint answers with either a bare list or a page
	var list []models.Notification
	if err := decodeInto(body, &list, "/notificacion/"); err == nil {
		return list, nil
	}
	var page models.Page[models.Notification]
	if err := decodeInto(body, &page, "/notificacion/"); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// MarkRead flags a notification as read
func (c *Client) MarkRead(ctx context.Context, ts TokenSource, id int) error {
	tok, err := c.token(ctx, ts)
	if err != nil {
		return err
	}
	return c.sendJSON(ctx, tok, http.MethodPost, fmt.Sprintf("/notification/%d/mark_read/", id), nil, nil)
}
