package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Contents is a file as returned by the contents API.
type Contents struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// Decoded returns the file bytes. GitHub wraps base64 content at 60
// columns, so embedded newlines are stripped before decoding.
func (c *Contents) Decoded() ([]byte, error) {
	if c.Encoding != "" && c.Encoding != "base64" {
		return nil, fmt.Errorf("github: unsupported content encoding %q", c.Encoding)
	}
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(c.Content)
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("github: decoding content of %s: %w", c.Path, err)
	}
	return decoded, nil
}

// PutContentsRequest creates or updates a file. SHA must be the current
// blob SHA when updating and empty when creating.
type PutContentsRequest struct {
	Message string
	Content []byte
	SHA     string
	Branch  string
}

// CommitRef identifies the commit produced by a contents update.
type CommitRef struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
}

// PutContentsResponse is the result of a contents update.
type PutContentsResponse struct {
	Content Contents  `json:"content"`
	Commit  CommitRef `json:"commit"`
}

// GetContents fetches a file at ref. An empty ref selects the default branch.
func (c *Client) GetContents(ctx context.Context, owner, repo, filePath, ref string) (*Contents, error) {
	path := contentsPath(owner, repo, filePath)
	if ref != "" {
		path += "?ref=" + url.QueryEscape(ref)
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var contents Contents
	if err := json.Unmarshal(body, &contents); err != nil {
		return nil, fmt.Errorf("github: decoding contents of %s: %w", filePath, err)
	}
	if contents.Type != "" && contents.Type != "file" {
		return nil, fmt.Errorf("github: %s is a %s, not a file", filePath, contents.Type)
	}
	return &contents, nil
}

// PutContents creates or replaces a file with a single commit.
func (c *Client) PutContents(ctx context.Context, owner, repo, filePath string, request PutContentsRequest) (*PutContentsResponse, error) {
	payload := struct {
		Message string `json:"message"`
		Content string `json:"content"`
		SHA     string `json:"sha,omitempty"`
		Branch  string `json:"branch,omitempty"`
	}{
		Message: request.Message,
		Content: base64.StdEncoding.EncodeToString(request.Content),
		SHA:     request.SHA,
		Branch:  request.Branch,
	}

	body, err := c.do(ctx, http.MethodPut, contentsPath(owner, repo, filePath), payload)
	if err != nil {
		return nil, err
	}

	var response PutContentsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("github: decoding update response for %s: %w", filePath, err)
	}
	return &response, nil
}
