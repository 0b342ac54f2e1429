package whatsapp

import (
	"context"
	"io"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
)

// ClientInterface is the subset of the Cloud API the console calls. Every
// call runs with the credentials of the given organization.
type ClientInterface interface {
	// SendMessage posts req and returns the provider message id
	SendMessage(ctx context.Context, org *model.Organization, req *SendRequest) (string, error)

	// UploadMedia uploads file and returns the provider media id
	UploadMedia(ctx context.Context, org *model.Organization, file io.Reader, filename, mimeType string) (string, error)

	// GetMediaURL resolves a media id to a short-lived download URL
	GetMediaURL(ctx context.Context, org *model.Organization, mediaID string) (*MediaInfo, error)

	// DownloadMedia opens the binary behind a URL returned by GetMediaURL
	DownloadMedia(ctx context.Context, org *model.Organization, url string) (*Download, error)

	// MarkAsRead acknowledges an inbound message
	MarkAsRead(ctx context.Context, org *model.Organization, wamid string) error
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)
