package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v18.0"
	defaultTimeout    = 15 * time.Second

	// error codes for failures that never reached the provider
	CodeNetworkError = "NETWORK_ERROR"
	CodeTimeout      = "TIMEOUT"
	CodeBadResponse  = "BAD_RESPONSE"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the WhatsApp Cloud API. Calls are never retried.
type Client struct {
	baseURL    string
	apiVersion string
	timeout    time.Duration
	httpClient *http.Client
}

// MediaInfo is the metadata returned for a media id.
type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
}

// Download is an open media stream. The caller closes Body.
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type graphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		ErrorData    struct {
			Details string `json:"details"`
		} `json:"error_data"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// NewClient creates a Client, filling in defaults for zero options.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiVersion := strings.Trim(strings.TrimSpace(opts.APIVersion), "/")
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

func (c *Client) endpoint(parts ...string) string {
	return c.baseURL + "/" + c.apiVersion + "/" + strings.Join(parts, "/")
}

// SendMessage implements ClientInterface.
func (c *Client) SendMessage(ctx context.Context, org *model.Organization, req *SendRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode send request: %w", err)
	}

	var resp sendResponse
	if err := c.doJSON(ctx, "send_message", org, http.MethodPost, c.endpoint(org.PhoneNumberID, "messages"), "application/json", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return "", apperrors.NewProviderError(CodeBadResponse, "send response carried no message id", http.StatusOK)
	}
	return resp.Messages[0].ID, nil
}

// UploadMedia implements ClientInterface.
func (c *Client) UploadMedia(ctx context.Context, org *model.Organization, file io.Reader, filename, mimeType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("messaging_product", messagingProduct); err != nil {
		return "", err
	}
	if err := mw.WriteField("type", mimeType); err != nil {
		return "", err
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to buffer media upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, "upload_media", org, http.MethodPost, c.endpoint(org.PhoneNumberID, "media"), mw.FormDataContentType(), &buf, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", apperrors.NewProviderError(CodeBadResponse, "upload response carried no media id", http.StatusOK)
	}
	return resp.ID, nil
}

// GetMediaURL implements ClientInterface.
func (c *Client) GetMediaURL(ctx context.Context, org *model.Organization, mediaID string) (*MediaInfo, error) {
	if mediaID == "" {
		return nil, fmt.Errorf("%w: media id is required", apperrors.ErrBadRequest)
	}
	var info MediaInfo
	if err := c.doJSON(ctx, "get_media_url", org, http.MethodGet, c.endpoint(mediaID), "", nil, &info); err != nil {
		return nil, err
	}
	if info.URL == "" {
		return nil, apperrors.NewProviderError(CodeBadResponse, "media lookup carried no url", http.StatusOK)
	}
	return &info, nil
}

// DownloadMedia implements ClientInterface. The stream is bounded by the
// http client timeout rather than a per-call deadline so it can be proxied.
func (c *Client) DownloadMedia(ctx context.Context, org *model.Organization, url string) (*Download, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid media url: %w", apperrors.ErrBadRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+org.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observer.ObserveProviderRequest("download_media", 0, time.Since(start))
		return nil, transportError(err)
	}
	observer.ObserveProviderRequest("download_media", resp.StatusCode, time.Since(start))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, parseError(resp)
	}
	return &Download{Body: resp.Body, ContentType: resp.Header.Get("Content-Type"), ContentLength: resp.ContentLength}, nil
}

// MarkAsRead implements ClientInterface.
func (c *Client) MarkAsRead(ctx context.Context, org *model.Organization, wamid string) error {
	body, err := json.Marshal(map[string]string{
		"messaging_product": messagingProduct,
		"status":            "read",
		"message_id":        wamid,
	})
	if err != nil {
		return err
	}
	return c.doJSON(ctx, "mark_as_read", org, http.MethodPost, c.endpoint(org.PhoneNumberID, "messages"), "application/json", bytes.NewReader(body), nil)
}

func (c *Client) doJSON(ctx context.Context, operation string, org *model.Organization, method, url, contentType string, body io.Reader, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+org.AccessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	log := logger.FromContext(ctx).With(zap.String("operation", operation))
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observer.ObserveProviderRequest(operation, 0, time.Since(start))
		log.Warn("Provider request failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return transportError(err)
	}
	defer resp.Body.Close()
	observer.ObserveProviderRequest(operation, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := parseError(resp)
		log.Warn("Provider rejected request", zap.Int("status_code", resp.StatusCode), zap.Error(perr))
		return perr
	}
	log.Debug("Provider request succeeded", zap.Int("status_code", resp.StatusCode), zap.Duration("duration", time.Since(start)))

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewProviderError(CodeBadResponse, fmt.Sprintf("undecodable %s response: %v", operation, err), resp.StatusCode)
	}
	return nil
}

// parseError turns a non-2xx Graph response into a ProviderError.
func parseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var ge graphError
	if json.Unmarshal(raw, &ge) == nil && (ge.Error.Code != 0 || ge.Error.Message != "") {
		msg := ge.Error.Message
		if d := ge.Error.ErrorData.Details; d != "" {
			msg = msg + ": " + d
		}
		return apperrors.NewProviderError(strconv.Itoa(ge.Error.Code), msg, resp.StatusCode)
	}

	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return apperrors.NewProviderError("HTTP_"+strconv.Itoa(resp.StatusCode), msg, resp.StatusCode)
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewProviderError(CodeTimeout, err.Error(), http.StatusGatewayTimeout)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewProviderError(CodeTimeout, err.Error(), http.StatusGatewayTimeout)
	}
	return apperrors.NewProviderError(CodeNetworkError, err.Error(), http.StatusBadGateway)
}
