package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAPIBase     = "https://api.dropboxapi.com"
	defaultContentBase = "https://content.dropboxapi.com"

	// Error bodies are diagnostic only; don't slurp arbitrary responses.
	maxErrorBody = 4 << 10
)

// FileMetadata describes a file or folder entry as returned by the API.
type FileMetadata struct {
	Name           string `json:"name"`
	PathLower      string `json:"path_lower"`
	PathDisplay    string `json:"path_display"`
	Size           int64  `json:"size,omitempty"`
	ContentHash    string `json:"content_hash,omitempty"`
	ClientModified string `json:"client_modified,omitempty"`
	ServerModified string `json:"server_modified,omitempty"`
}

// ListFolderResult is one page of folder entries.
type ListFolderResult struct {
	Entries []FileMetadata `json:"entries"`
	Cursor  string         `json:"cursor"`
	HasMore bool           `json:"has_more"`
}

// AccountInfo is the loosely-typed account payload from test_connection.
type AccountInfo map[string]any

// Client is an authenticated wrapper around the Dropbox HTTP API. It does
// not retry or rate-limit; both concerns belong to the callers composing it.
type Client struct {
	httpClient  *http.Client
	accessToken string
	apiBase     string
	contentBase string
}

// NewClient creates a Client authenticated with the given access token.
func NewClient(accessToken string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		accessToken: accessToken,
		apiBase:     defaultAPIBase,
		contentBase: defaultContentBase,
	}
}

// NewClientWithBaseURL creates a Client pointed at alternate endpoints.
// Used by tests to target an httptest server.
func NewClientWithBaseURL(accessToken string, httpClient *http.Client, apiBase, contentBase string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient:  httpClient,
		accessToken: accessToken,
		apiBase:     apiBase,
		contentBase: contentBase,
	}
}

// TestConnection verifies the access token by fetching the current account.
func (c *Client) TestConnection(ctx context.Context) (AccountInfo, error) {
	const op = "test connection"
	resp, err := c.postJSON(ctx, op, c.apiBase+"/2/users/get_current_account", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var info AccountInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("dropbox: %s failed to decode account info: %w", op, err)
	}
	return info, nil
}

type listFolderRequest struct {
	Path             string `json:"path"`
	Recursive        bool   `json:"recursive"`
	IncludeMediaInfo bool   `json:"include_media_info"`
	IncludeDeleted   bool   `json:"include_deleted"`
}

// ListFolder returns the entries of a folder. Non-recursive.
func (c *Client) ListFolder(ctx context.Context, path string) (*ListFolderResult, error) {
	const op = "list folder"
	body := listFolderRequest{Path: path}
	resp, err := c.postJSON(ctx, op, c.apiBase+"/2/files/list_folder", path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ListFolderResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("dropbox: %s %q failed to decode response: %w", op, path, err)
	}
	return &result, nil
}

// DownloadFile fetches the raw bytes of a file.
func (c *Client) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	const op = "download file"
	req, err := c.contentRequest(ctx, c.contentBase+"/2/files/download", map[string]any{"path": path}, nil)
	if err != nil {
		return nil, fmt.Errorf("dropbox: %s %q: %w", op, path, err)
	}

	resp, err := c.do(op, path, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dropbox: %s %q failed to read content: %w", op, path, err)
	}
	return content, nil
}

// UploadFile writes content to path in overwrite mode. Uploads are atomic
// at the remote store, so a repeated upload is a safe no-op overwrite.
func (c *Client) UploadFile(ctx context.Context, path string, content []byte) (*FileMetadata, error) {
	const op = "upload file"
	args := map[string]any{"path": path, "mode": "overwrite", "autorename": false}
	req, err := c.contentRequest(ctx, c.contentBase+"/2/files/upload", args, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("dropbox: %s %q: %w", op, path, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(op, path, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var metadata FileMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("dropbox: %s %q failed to decode metadata: %w", op, path, err)
	}
	return &metadata, nil
}

// DeleteFile removes a file and returns its metadata.
func (c *Client) DeleteFile(ctx context.Context, path string) (*FileMetadata, error) {
	const op = "delete file"
	resp, err := c.postJSON(ctx, op, c.apiBase+"/2/files/delete_v2", path, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeWrappedMetadata(op, path, resp.Body)
}

// CreateFolder creates a folder. Callers treat ErrConflict as success so
// that folder creation stays idempotent.
func (c *Client) CreateFolder(ctx context.Context, path string) (*FileMetadata, error) {
	const op = "create folder"
	body := map[string]any{"path": path, "autorename": false}
	resp, err := c.postJSON(ctx, op, c.apiBase+"/2/files/create_folder_v2", path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeWrappedMetadata(op, path, resp.Body)
}

// postJSON issues an RPC-style call against the api endpoint and checks the
// response status. The caller owns the returned body.
func (c *Client) postJSON(ctx context.Context, op, url, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("dropbox: %s %q failed to encode request: %w", op, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, fmt.Errorf("dropbox: %s %q: %w", op, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(op, path, req)
}

// contentRequest builds a request against the content endpoint, where the
// arguments travel in the Dropbox-API-Arg header and the body is raw bytes.
func (c *Client) contentRequest(ctx context.Context, url string, args map[string]any, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Dropbox-API-Arg", string(encoded))
	return req, nil
}

func (c *Client) do(op, path string, req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dropbox: %s %q failed: %w", op, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		summary, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &APIError{
			Op:         op,
			Path:       path,
			StatusCode: resp.StatusCode,
			Summary:    string(bytes.TrimSpace(summary)),
		}
	}
	return resp, nil
}

// decodeWrappedMetadata unwraps the {"metadata": {...}} envelope used by
// delete_v2 and create_folder_v2.
func decodeWrappedMetadata(op, path string, body io.Reader) (*FileMetadata, error) {
	var envelope struct {
		Metadata FileMetadata `json:"metadata"`
	}
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("dropbox: %s %q failed to decode metadata: %w", op, path, err)
	}
	return &envelope.Metadata, nil
}
