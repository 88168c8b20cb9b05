package client

import (
	"context"
	"net/http"

	"github.com/greater-social/greater/internal/core"
)

// VerifyCredentials returns the authenticated account.
func (c *Client) VerifyCredentials(ctx context.Context) (*core.Account, error) {
	var account core.Account
	if _, err := c.getJSON(ctx, "/api/v1/accounts/verify_credentials", nil, "account", &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccount fetches an account by id, username or profile URL.
func (c *Client) GetAccount(ctx context.Context, id string) (*core.Account, error) {
	var account core.Account
	if _, err := c.getJSON(ctx, "/api/v1/accounts/"+accountPathID(id), nil, "account", &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// LookupAccount resolves a webfinger address such as alice@example.social.
func (c *Client) LookupAccount(ctx context.Context, acct string) (*core.Account, error) {
	var account core.Account
	params := map[string]any{"acct": acct}
	if _, err := c.getJSON(ctx, "/api/v1/accounts/lookup", params, "account", &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// AccountStatuses lists an account's posts.
func (c *Client) AccountStatuses(ctx context.Context, id string, page PageParams) (*Page[core.Status], error) {
	return getPage[core.Status](ctx, c, "/api/v1/accounts/"+accountPathID(id)+"/statuses", page.params(), "status")
}

func (c *Client) Follow(ctx context.Context, id string) (*core.Relationship, error) {
	return c.relationshipAction(ctx, id, "follow")
}

func (c *Client) Unfollow(ctx context.Context, id string) (*core.Relationship, error) {
	return c.relationshipAction(ctx, id, "unfollow")
}

func (c *Client) relationshipAction(ctx context.Context, id, action string) (*core.Relationship, error) {
	var rel core.Relationship
	path := "/api/v1/accounts/" + accountPathID(id) + "/" + action
	if err := c.sendJSON(ctx, http.MethodPost, path, nil, "relationship", &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}
