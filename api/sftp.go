package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/habedi/monitorctl/client"
)

// SFTPTicket requests a one-shot ticket for server id. Each SFTP call consumes one.
func (a *API) SFTPTicket(ctx context.Context, serverID int64) (*SFTPTicket, error) {
	var t SFTPTicket
	if err := a.get(ctx, fmt.Sprintf("/server/%d/sftp-ticket", serverID), nil, &t); err != nil {
		return nil, err
	}
	if t.Ticket == "" {
		return nil, fmt.Errorf("server %d returned an empty SFTP ticket", serverID)
	}
	return &t, nil
}

// SFTPList lists dir on the server, fetching a fresh ticket first.
func (a *API) SFTPList(ctx context.Context, serverID int64, dir string) ([]SFTPEntry, error) {
	t, err := a.SFTPTicket(ctx, serverID)
	if err != nil {
		return nil, err
	}
	query := url.Values{"ticket": {t.Ticket}}
	if dir != "" {
		query.Set("path", dir)
	}
	var entries []SFTPEntry
	if err := a.get(ctx, "/sftp/list", query, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SFTPUpload stores the content of r as targetDir/name on the server.
// The whole body is buffered so the request can be replayed after a refresh.
func (a *API) SFTPUpload(ctx context.Context, serverID int64, targetDir, name string, r io.Reader, overwrite bool) (*UploadResult, error) {
	t, err := a.SFTPTicket(ctx, serverID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"ticket":    t.Ticket,
		"targetDir": targetDir,
		"overwrite": strconv.FormatBool(overwrite),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	var res UploadResult
	err = a.c.DoJSON(ctx, &client.Request{
		Method:      http.MethodPost,
		Path:        "/sftp/upload",
		Body:        buf.Bytes(),
		ContentType: mw.FormDataContentType(),
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SFTPDownload streams the remote file at path into w and returns the byte count.
func (a *API) SFTPDownload(ctx context.Context, serverID int64, path string, w io.Writer) (int64, error) {
	t, err := a.SFTPTicket(ctx, serverID)
	if err != nil {
		return 0, err
	}
	res, err := a.c.Do(ctx, &client.Request{
		Method:       http.MethodGet,
		Path:         "/sftp/download",
		Query:        url.Values{"ticket": {t.Ticket}, "path": {path}},
		ResponseType: client.ResponseBinary,
		Output:       w,
	})
	if err != nil {
		return 0, err
	}
	return res.Written, nil
}
