// Package api exposes the monitoring backend's endpoints as typed calls.
// Every call goes through client.Client, so an expired access token is
// refreshed and the call replayed without the caller noticing.
package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/habedi/monitorctl/client"
)

// API is a typed facade over client.Client.
type API struct {
	c *client.Client
}

// New wraps c.
func New(c *client.Client) *API { return &API{c: c} }

// Client returns the underlying coordinator.
func (a *API) Client() *client.Client { return a.c }

func (a *API) get(ctx context.Context, path string, query url.Values, out any) error {
	return a.c.DoJSON(ctx, &client.Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (a *API) post(ctx context.Context, path string, body, out any) error {
	return a.c.DoJSON(ctx, &client.Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (a *API) put(ctx context.Context, path string, body, out any) error {
	return a.c.DoJSON(ctx, &client.Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (a *API) delete(ctx context.Context, path string, query url.Values) error {
	return a.c.DoJSON(ctx, &client.Request{Method: http.MethodDelete, Path: path, Query: query}, nil)
}
