package mock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/whatsapp"
)

// ClientMock mocks whatsapp.ClientInterface
type ClientMock struct {
	mock.Mock
}

// Ensure ClientMock implements whatsapp.ClientInterface
var _ whatsapp.ClientInterface = (*ClientMock)(nil)

func (m *ClientMock) SendMessage(ctx context.Context, org *model.Organization, req *whatsapp.SendRequest) (string, error) {
	args := m.Called(ctx, org, req)
	return args.String(0), args.Error(1)
}

func (m *ClientMock) UploadMedia(ctx context.Context, org *model.Organization, file io.Reader, filename, mimeType string) (string, error) {
	args := m.Called(ctx, org, file, filename, mimeType)
	return args.String(0), args.Error(1)
}

func (m *ClientMock) GetMediaURL(ctx context.Context, org *model.Organization, mediaID string) (*whatsapp.MediaInfo, error) {
	args := m.Called(ctx, org, mediaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*whatsapp.MediaInfo), args.Error(1)
}

func (m *ClientMock) DownloadMedia(ctx context.Context, org *model.Organization, url string) (*whatsapp.Download, error) {
	args := m.Called(ctx, org, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*whatsapp.Download), args.Error(1)
}

func (m *ClientMock) MarkAsRead(ctx context.Context, org *model.Organization, wamid string) error {
	args := m.Called(ctx, org, wamid)
	return args.Error(0)
}
