package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/whatsapp"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

// MediaStream is an open attachment. The caller closes Body.
type MediaStream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	Filename      string
}

// MediaService serves message attachments.
type MediaService struct {
	organizations storage.OrganizationRepo
	media         storage.MediaRepo
	provider      whatsapp.ClientInterface
}

// NewMediaService creates a media service.
func NewMediaService(organizations storage.OrganizationRepo, media storage.MediaRepo, provider whatsapp.ClientInterface) *MediaService {
	return &MediaService{organizations: organizations, media: media, provider: provider}
}

// Fetch opens the attachment of messageID. A local copy kept from an upload
// is preferred; otherwise the file is streamed from the provider.
func (s *MediaService) Fetch(ctx context.Context, messageID string) (*MediaStream, error) {
	orgID, err := organizationFromContext(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With(zap.String("message_id", messageID))

	media, err := s.media.FindByMessageID(ctx, messageID)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "find media", messageID)
	}

	if media.LocalPath != "" {
		if stream, err := openLocal(media); err == nil {
			return stream, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to open local media copy", zap.Error(err))
		}
	}
	if media.MediaID == "" {
		return nil, fmt.Errorf("%w: media of message %s has no source", apperrors.ErrNotFound, messageID)
	}

	org, err := s.organizations.FindByID(ctx, orgID)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "find organization", orgID)
	}
	info, err := s.provider.GetMediaURL(ctx, org, media.MediaID)
	if err != nil {
		return nil, err
	}
	dl, err := s.provider.DownloadMedia(ctx, org, info.URL)
	if err != nil {
		return nil, err
	}

	contentType := dl.ContentType
	if contentType == "" {
		contentType = media.MimeType
	}
	return &MediaStream{
		Body:          dl.Body,
		ContentType:   contentType,
		ContentLength: dl.ContentLength,
		Filename:      media.Filename,
	}, nil
}

func openLocal(media *model.Media) (*MediaStream, error) {
	f, err := os.Open(media.LocalPath)
	if err != nil {
		return nil, err
	}
	size := media.Size
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}
	return &MediaStream{
		Body:          f,
		ContentType:   media.MimeType,
		ContentLength: size,
		Filename:      media.Filename,
	}, nil
}
