package api

import (
	"context"
	"fmt"
	"net/url"
)

// CPUHistory returns the recent CPU samples of the host at ip.
func (a *API) CPUHistory(ctx context.Context, ip string) ([]CPUPoint, error) {
	var points []CPUPoint
	if err := a.get(ctx, "/monitor/cpu-history", url.Values{"ip": {ip}}, &points); err != nil {
		return nil, err
	}
	return points, nil
}

func (a *API) ListServers(ctx context.Context) ([]ServerInfo, error) {
	var servers []ServerInfo
	if err := a.get(ctx, "/server/list", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// SaveServer creates the server when s.ID is zero and updates it otherwise.
func (a *API) SaveServer(ctx context.Context, s ServerInfo) error {
	return a.post(ctx, "/server/save", s, nil)
}

func (a *API) DeleteServer(ctx context.Context, id int64) error {
	return a.delete(ctx, fmt.Sprintf("/server/%d", id), nil)
}
