package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/config"
	"github.com/kozaktomas/photo-batcher/internal/constants"
)

// TokenSource supplies a valid bearer token for each request. The Manager
// implements it; tests inject a static one.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// File is the subset of Drive file metadata the app cares about.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	WebViewLink string `json:"webViewLink,omitempty"`
}

// Client talks to the Drive v3 REST API. Base URLs are injectable so tests
// can point it at an httptest server.
type Client struct {
	apiBase    string
	uploadBase string
	tokens     TokenSource
	log        zerolog.Logger
}

func NewClient(cfg *config.DriveConfig, tokens TokenSource, log zerolog.Logger) *Client {
	return &Client{
		apiBase:    strings.TrimSuffix(cfg.APIBaseURL, "/"),
		uploadBase: strings.TrimSuffix(cfg.UploadBaseURL, "/"),
		tokens:     tokens,
		log:        log,
	}
}

// FindFolder looks up a non-trashed folder by name under a parent. Returns
// nil when no folder matches.
func (c *Client) FindFolder(ctx context.Context, name, parentID string) (*File, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		escapeQuery(name), constants.DriveFolderMimeType)
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(parentID))
	}
	endpoint := "files?q=" + url.QueryEscape(q) + "&fields=" + url.QueryEscape("files(id,name,mimeType)")

	result, err := doGetJSON[fileList](ctx, c, endpoint)
	if err != nil {
		return nil, err
	}
	if len(result.Files) == 0 {
		return nil, nil
	}
	return &result.Files[0], nil
}

// CreateFolder creates a folder under parentID (Drive root when empty).
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (*File, error) {
	input := struct {
		Name     string   `json:"name"`
		MimeType string   `json:"mimeType"`
		Parents  []string `json:"parents,omitempty"`
	}{
		Name:     name,
		MimeType: constants.DriveFolderMimeType,
	}
	if parentID != "" {
		input.Parents = []string{parentID}
	}
	return doPostJSON[File](ctx, c, "files", input)
}

// EnsureFolder finds or creates a folder, so re-running a batch reuses the
// folder from the previous attempt instead of piling up duplicates.
func (c *Client) EnsureFolder(ctx context.Context, name, parentID string) (*File, error) {
	f, err := c.FindFolder(ctx, name, parentID)
	if err != nil {
		return nil, err
	}
	if f != nil {
		c.log.Debug().Str("name", name).Str("id", f.ID).Msg("reusing existing drive folder")
		return f, nil
	}
	return c.CreateFolder(ctx, name, parentID)
}

// UploadFile uploads a local file into a folder using a multipart related
// request: part one is the JSON metadata, part two the raw content.
func (c *Client) UploadFile(ctx context.Context, folderID, name, path string) (*File, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer src.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	meta, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create metadata part: %w", err)
	}
	metadata := struct {
		Name    string   `json:"name"`
		Parents []string `json:"parents"`
	}{Name: name, Parents: []string{folderID}}
	if err := json.NewEncoder(meta).Encode(metadata); err != nil {
		return nil, fmt.Errorf("could not encode metadata: %w", err)
	}

	content, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {contentTypeFor(path)},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create content part: %w", err)
	}
	if _, err := io.Copy(content, src); err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("could not finish multipart body: %w", err)
	}

	endpoint := c.uploadBase + "/files?uploadType=multipart&fields=" + url.QueryEscape("id,name,mimeType")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var result File
	if err := decodeJSON(resp.Body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ShareFolder grants anyone-with-the-link read access and returns the
// shareable view link.
func (c *Client) ShareFolder(ctx context.Context, folderID string) (string, error) {
	input := struct {
		Role string `json:"role"`
		Type string `json:"type"`
	}{Role: "reader", Type: "anyone"}

	if _, err := doPostJSON[struct {
		ID string `json:"id"`
	}](ctx, c, fmt.Sprintf("files/%s/permissions", folderID), input); err != nil {
		return "", fmt.Errorf("could not share folder: %w", err)
	}

	f, err := doGetJSON[File](ctx, c, fmt.Sprintf("files/%s?fields=%s", folderID, url.QueryEscape("id,webViewLink")))
	if err != nil {
		return "", fmt.Errorf("could not read folder link: %w", err)
	}
	return f.WebViewLink, nil
}

type fileList struct {
	Files []File `json:"files"`
}

// doGetJSON performs a GET request and unmarshals the JSON response into the
// result type. The endpoint is the path after the API base URL.
func doGetJSON[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/"+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var result T
	if err := decodeJSON(resp.Body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// doPostJSON performs a POST request with a JSON body and unmarshals the
// JSON response.
func doPostJSON[T any](ctx context.Context, c *Client, endpoint string, requestBody any) (*T, error) {
	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var result T
	if err := decodeJSON(resp.Body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func decodeJSON(r io.Reader, dest any) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("could not read response body: %w", err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("could not unmarshal response: %w", err)
	}
	return nil
}

// readErrorBody reads the response body for error messages. Returns a
// placeholder if reading fails; we are already in an error path.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(r)
	if err != nil {
		return "(could not read error body)"
	}
	return string(body)
}

// escapeQuery escapes single quotes for Drive query string literals.
func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
