package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/realtime"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/validator"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/whatsapp"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

const (
	defaultMaxUploadBytes = 16 << 20
	defaultSendTimeout    = 60 * time.Second
)

// SendInput is an agent's request to send content into a conversation.
type SendInput struct {
	ConversationID string        `validate:"required"`
	Content        model.Content `validate:"required"`
	ReplyTo        string
	UserID         string
}

// MediaInput is an agent's request to send a file into a conversation.
type MediaInput struct {
	ConversationID string            `validate:"required"`
	Type           model.MessageType `validate:"required,media_type"`
	File           io.Reader         `validate:"required"`
	Filename       string            `validate:"required"`
	MimeType       string            `validate:"required"`
	Caption        string
	ReplyTo        string
	UserID         string
}

// SendOptions configures where uploaded files are kept. Timeout bounds one
// send once it has been detached from the caller.
type SendOptions struct {
	MediaDir       string
	MaxUploadBytes int64
	Timeout        time.Duration
}

// SendService orchestrates outbound messages.
type SendService struct {
	repos    Repositories
	provider whatsapp.ClientInterface
	emitter  realtime.Emitter
	opts     SendOptions
	now      func() time.Time
}

// NewSendService creates the outbound orchestrator.
func NewSendService(repos Repositories, provider whatsapp.ClientInterface, emitter realtime.Emitter, opts SendOptions) *SendService {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSendTimeout
	}
	if opts.MediaDir == "" {
		opts.MediaDir = filepath.Join(os.TempDir(), "wa-console-media")
	}
	return &SendService{
		repos:    repos,
		provider: provider,
		emitter:  emitter,
		opts:     opts,
		now:      utils.Now,
	}
}

// sendTarget is everything loaded before a message may be sent.
type sendTarget struct {
	org          *model.Organization
	conversation *model.Conversation
	contact      *model.Contact
}

func (s *SendService) loadTarget(ctx context.Context, conversationID string, msgType model.MessageType) (*sendTarget, error) {
	orgID, err := organizationFromContext(ctx)
	if err != nil {
		return nil, err
	}

	conv, err := s.repos.Conversations.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrConversationNotFound, conversationID)
		}
		return nil, handleRepositoryError(ctx, err, "find conversation", conversationID)
	}
	contact, err := s.repos.Contacts.FindByID(ctx, conv.ContactID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: contact of %s", apperrors.ErrConversationNotFound, conversationID)
		}
		return nil, handleRepositoryError(ctx, err, "find contact", conv.ContactID)
	}

	if msgType != model.MessageTypeTemplate && !conv.WindowOpen(s.now()) {
		return nil, fmt.Errorf("%w: conversation %s", apperrors.ErrWindowExpired, conversationID)
	}

	org, err := s.repos.Organizations.FindByID(ctx, orgID)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "find organization", orgID)
	}
	return &sendTarget{org: org, conversation: conv, contact: contact}, nil
}

// detach keeps a send running when the caller goes away, so a PENDING row
// always ends SENT or FAILED.
func (s *SendService) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
}

// Send delivers content to the conversation's contact. The message is stored
// as PENDING before the provider is called and ends SENT or FAILED. Free-form
// content requires an open session window; templates do not.
func (s *SendService) Send(ctx context.Context, in SendInput) (*model.Message, error) {
	ctx, cancel := s.detach(ctx)
	defer cancel()

	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	if err := validator.ValidateContent(in.Content); err != nil {
		return nil, err
	}
	msgType := in.Content.MessageType()

	target, err := s.loadTarget(ctx, in.ConversationID, msgType)
	if err != nil {
		return nil, err
	}
	req, err := whatsapp.BuildSendRequest(target.contact.Phone, in.Content, in.ReplyTo)
	if err != nil {
		return nil, err
	}

	msg, err := s.newPending(target, in.Content, in.ReplyTo, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Messages.CreatePending(ctx, msg, nil); err != nil {
		return nil, handleRepositoryError(ctx, err, "create pending message", msg.ID)
	}

	wamid, err := s.provider.SendMessage(ctx, target.org, req)
	if err != nil {
		return nil, s.fail(ctx, target.org.ID, msg, err)
	}
	return s.complete(ctx, target.org.ID, msg, in.Content, wamid)
}

// SendMedia stores a local copy of the file and its media row, uploads it and
// sends it. The local copy is removed when the provider rejects either call;
// the message row is kept as FAILED.
func (s *SendService) SendMedia(ctx context.Context, in MediaInput) (*model.Message, error) {
	ctx, cancel := s.detach(ctx)
	defer cancel()

	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)

	target, err := s.loadTarget(ctx, in.ConversationID, in.Type)
	if err != nil {
		return nil, err
	}

	localPath, size, digest, err := s.storeFile(target.org.ID, in.Filename, in.File)
	if err != nil {
		return nil, err
	}
	removeLocal := func() {
		if rmErr := os.Remove(localPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn("Failed to remove local media copy", zap.String("path", localPath), zap.Error(rmErr))
		}
	}

	ref := model.MediaRef{MimeType: in.MimeType, SHA256: digest, Caption: in.Caption, Filename: in.Filename}
	content, err := model.NewMediaContent(in.Type, ref)
	if err != nil {
		removeLocal()
		return nil, err
	}

	msg, err := s.newPending(target, content, in.ReplyTo, in.UserID)
	if err != nil {
		removeLocal()
		return nil, err
	}
	media := &model.Media{
		ID:             uuid.NewString(),
		OrganizationID: target.org.ID,
		MessageID:      msg.ID,
		Type:           string(in.Type),
		MimeType:       in.MimeType,
		SHA256:         digest,
		Filename:       in.Filename,
		LocalPath:      localPath,
		Size:           size,
	}
	if err := s.repos.Messages.CreatePending(ctx, msg, media); err != nil {
		removeLocal()
		return nil, handleRepositoryError(ctx, err, "create pending message", msg.ID)
	}

	f, err := os.Open(localPath)
	if err != nil {
		removeLocal()
		return nil, s.fail(ctx, target.org.ID, msg, fmt.Errorf("open local media copy: %w", err))
	}
	mediaID, err := s.provider.UploadMedia(ctx, target.org, f, in.Filename, in.MimeType)
	_ = f.Close()
	if err != nil {
		removeLocal()
		return nil, s.fail(ctx, target.org.ID, msg, err)
	}

	ref.MediaID = mediaID
	content, err = model.NewMediaContent(in.Type, ref)
	if err != nil {
		removeLocal()
		return nil, s.fail(ctx, target.org.ID, msg, err)
	}
	req, err := whatsapp.BuildSendRequest(target.contact.Phone, content, in.ReplyTo)
	if err != nil {
		removeLocal()
		return nil, s.fail(ctx, target.org.ID, msg, err)
	}
	wamid, err := s.provider.SendMessage(ctx, target.org, req)
	if err != nil {
		removeLocal()
		return nil, s.fail(ctx, target.org.ID, msg, err)
	}

	sent, err := s.complete(ctx, target.org.ID, msg, content, wamid)
	if err != nil {
		return nil, err
	}
	if sent.Media == nil {
		sent.Media = media
	}
	return sent, nil
}

func (s *SendService) newPending(target *sendTarget, content model.Content, replyTo, userID string) (*model.Message, error) {
	encoded, err := model.EncodeContent(content)
	if err != nil {
		return nil, fmt.Errorf("%w: encode content: %v", apperrors.ErrValidation, err)
	}
	return &model.Message{
		ID:             uuid.NewString(),
		OrganizationID: target.org.ID,
		ConversationID: target.conversation.ID,
		Direction:      model.DirectionOutbound,
		Type:           content.MessageType(),
		Status:         model.MessageStatusPending,
		Content:        encoded,
		ContextWamid:   model.StringPtr(replyTo),
		SentBy:         model.StringPtr(userID),
		Timestamp:      s.now(),
	}, nil
}

// complete records a provider acceptance and announces the message.
func (s *SendService) complete(ctx context.Context, orgID string, msg *model.Message, content model.Content, wamid string) (*model.Message, error) {
	now := s.now()
	sent, err := s.repos.Messages.MarkSent(ctx, msg.ID, wamid, now, model.AggregateUpdate{
		ConversationID: msg.ConversationID,
		LastMessageAt:  now,
		Preview:        model.TruncatePreview(model.Preview(content), model.OutboundPreviewLimit),
		Type:           msg.Type,
	})
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "mark message sent", msg.ID)
	}
	observer.IncMessageSent(orgID, string(msg.Type), nil)

	s.emitter.EmitToOrganization(ctx, orgID, model.EventMessageNew, model.MessageNewPayload{
		ConversationID: sent.ConversationID,
		Message:        sent,
	})
	logger.FromContext(ctx).Info("Message sent",
		zap.String("message_id", sent.ID),
		zap.String("wamid", wamid),
	)
	return sent, nil
}

// fail records cause on msg and returns it for the caller to re-raise.
func (s *SendService) fail(ctx context.Context, orgID string, msg *model.Message, cause error) error {
	log := logger.FromContext(ctx)
	observer.IncMessageSent(orgID, string(msg.Type), cause)

	code, message := "UNKNOWN", cause.Error()
	if pe, ok := apperrors.AsProviderError(cause); ok {
		code, message = pe.Code, pe.Message
	}
	if _, err := s.repos.Messages.MarkFailed(ctx, msg.ID, code, message, s.now()); err != nil {
		log.Error("Failed to record send failure",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
	log.Warn("Message send failed",
		zap.String("message_id", msg.ID),
		zap.String("error_code", code),
		zap.Error(cause),
	)
	return cause
}

// storeFile copies r under the media directory, enforcing the upload limit.
func (s *SendService) storeFile(orgID, filename string, r io.Reader) (path string, size int64, digest string, err error) {
	dir := filepath.Join(s.opts.MediaDir, orgID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, "", fmt.Errorf("create media dir: %w", err)
	}
	path = filepath.Join(dir, uuid.NewString()+filepath.Ext(filepath.Base(filename)))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, "", fmt.Errorf("create media file: %w", err)
	}

	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(f, h), io.LimitReader(r, s.opts.MaxUploadBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, "", fmt.Errorf("write media file: %w", err)
	}
	if size > s.opts.MaxUploadBytes {
		_ = os.Remove(path)
		return "", 0, "", fmt.Errorf("%w: file exceeds %s", apperrors.ErrValidation, utils.ByteCountSI(s.opts.MaxUploadBytes))
	}
	if size == 0 {
		_ = os.Remove(path)
		return "", 0, "", fmt.Errorf("%w: empty file", apperrors.ErrValidation)
	}
	return path, size, hex.EncodeToString(h.Sum(nil)), nil
}
