package client

import (
	"context"
	"net/url"
	"strings"

	"github.com/greater-social/greater/internal/core"
)

func (c *Client) HomeTimeline(ctx context.Context, page PageParams) (*Page[core.Status], error) {
	return getPage[core.Status](ctx, c, "/api/v1/timelines/home", page.params(), "status")
}

// PublicTimeline lists federated posts, or only this server's with local.
func (c *Client) PublicTimeline(ctx context.Context, local bool, page PageParams) (*Page[core.Status], error) {
	params := page.params()
	if local {
		params["local"] = true
	}
	return getPage[core.Status](ctx, c, "/api/v1/timelines/public", params, "status")
}

func (c *Client) HashtagTimeline(ctx context.Context, tag string, page PageParams) (*Page[core.Status], error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	return getPage[core.Status](ctx, c, "/api/v1/timelines/tag/"+url.PathEscape(tag), page.params(), "status")
}

func (c *Client) ListTimeline(ctx context.Context, listID string, page PageParams) (*Page[core.Status], error) {
	return getPage[core.Status](ctx, c, "/api/v1/timelines/list/"+EncodeAccountID(listID), page.params(), "status")
}

// Notifications lists notifications, optionally restricted to types.
func (c *Client) Notifications(ctx context.Context, page PageParams, types []string) (*Page[core.Notification], error) {
	params := page.params()
	if len(types) > 0 {
		params["types"] = types
	}
	return getPage[core.Notification](ctx, c, "/api/v1/notifications", params, "notification")
}

// Search runs a v2 search. kind narrows results to accounts, statuses or
// hashtags when set.
func (c *Client) Search(ctx context.Context, query, kind string, resolve bool, limit int) (*core.SearchResults, error) {
	params := map[string]any{"q": query}
	if kind != "" {
		params["type"] = kind
	}
	if resolve {
		params["resolve"] = true
	}
	if limit > 0 {
		params["limit"] = limit
	}
	var results core.SearchResults
	if _, err := c.getJSON(ctx, "/api/v2/search", params, "", &results); err != nil {
		return nil, err
	}
	return &results, nil
}

// Lists returns the user's lists.
func (c *Client) Lists(ctx context.Context) ([]core.List, error) {
	var lists []core.List
	if _, err := c.getJSON(ctx, "/api/v1/lists", nil, "list", &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// Markers returns saved read positions keyed by timeline (home, notifications).
func (c *Client) Markers(ctx context.Context, timelines ...string) (map[string]core.Marker, error) {
	if len(timelines) == 0 {
		timelines = []string{"home", "notifications"}
	}
	markers := map[string]core.Marker{}
	if _, err := c.getJSON(ctx, "/api/v1/markers", map[string]any{"timeline": timelines}, "", &markers); err != nil {
		return nil, err
	}
	return markers, nil
}

func getPage[T any](ctx context.Context, c *Client, path string, params map[string]any, schema string) (*Page[T], error) {
	var items []T
	resp, err := c.getJSON(ctx, path, params, schema, &items)
	if err != nil {
		return nil, err
	}
	return &Page[T]{Items: items, Links: resp.Links()}, nil
}
