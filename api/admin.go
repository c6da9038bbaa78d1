package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ListUsers returns one page of accounts, optionally filtered by username.
func (a *API) ListUsers(ctx context.Context, q UserQuery) (*UserPage, error) {
	query := url.Values{}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.Size > 0 {
		query.Set("size", strconv.Itoa(q.Size))
	}
	if q.Username != "" {
		query.Set("username", q.Username)
	}
	var page UserPage
	if err := a.get(ctx, "/admin/user/list", query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (a *API) AddUser(ctx context.Context, u NewUser) error {
	return a.post(ctx, "/admin/user/add", u, nil)
}

func (a *API) UpdateUser(ctx context.Context, u User) error {
	return a.put(ctx, "/admin/user/update", u, nil)
}

func (a *API) DeleteUser(ctx context.Context, id int64) error {
	return a.delete(ctx, "/admin/user/delete", url.Values{"id": {strconv.FormatInt(id, 10)}})
}

// ResetUserPassword sets the account's password back to the backend default.
func (a *API) ResetUserPassword(ctx context.Context, id int64) error {
	return a.post(ctx, fmt.Sprintf("/admin/user/reset-pwd/%d", id), nil, nil)
}
