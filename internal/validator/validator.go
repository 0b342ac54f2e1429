package validator

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// Get returns a singleton validator instance
func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report json field names instead of Go field names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = validate.RegisterValidation("message_type", func(fl validator.FieldLevel) bool {
			switch model.MessageType(fl.Field().String()) {
			case model.MessageTypeText, model.MessageTypeImage, model.MessageTypeVideo,
				model.MessageTypeAudio, model.MessageTypeDocument, model.MessageTypeSticker,
				model.MessageTypeLocation, model.MessageTypeContacts, model.MessageTypeInteractive,
				model.MessageTypeTemplate, model.MessageTypeReaction:
				return true
			}
			return false
		})
		_ = validate.RegisterValidation("media_type", func(fl validator.FieldLevel) bool {
			return model.MessageType(fl.Field().String()).IsMedia()
		})
		_ = validate.RegisterValidation("conversation_status", func(fl validator.FieldLevel) bool {
			return model.ConversationStatus(fl.Field().String()).Valid()
		})
	})
	return validate
}

// Validate validates a struct. Failures wrap apperrors.ErrValidation.
func Validate(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, fmt.Sprintf("field '%s' %s", e.Field(), getErrorMessage(e)))
	}

	return fmt.Errorf("%w: %s", apperrors.ErrValidation, strings.Join(messages, "; "))
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	if err := Get().Var(field, tag); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return nil
}

// ValidateContent checks the per-type rules of outbound content.
func ValidateContent(c model.Content) error {
	if err := Validate(c); err != nil {
		return err
	}
	switch v := c.(type) {
	case model.LocationContent:
		if v.Latitude < -90 || v.Latitude > 90 || v.Longitude < -180 || v.Longitude > 180 {
			return fmt.Errorf("%w: location coordinates out of range", apperrors.ErrValidation)
		}
	case model.ReactionContent:
		if v.MessageID == "" {
			return fmt.Errorf("%w: reaction requires messageId", apperrors.ErrValidation)
		}
	case model.InteractiveContent:
		if v.Type == "" || len(v.Action) == 0 {
			return fmt.Errorf("%w: interactive requires type and action", apperrors.ErrValidation)
		}
	case model.ContactsContent:
		if len(v.Contacts) == 0 {
			return fmt.Errorf("%w: contacts payload is empty", apperrors.ErrValidation)
		}
	case model.UnknownContent:
		return fmt.Errorf("%w: unsupported message type", apperrors.ErrValidation)
	}
	if ref, ok := model.MediaOf(c); ok && !ref.HasSource() {
		return fmt.Errorf("%w: %s requires mediaId or url", apperrors.ErrValidation, strings.ToLower(string(c.MessageType())))
	}
	return nil
}

// getErrorMessage returns a user-friendly error message for a validation tag
func getErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "message_type":
		return "is not a sendable message type"
	case "media_type":
		return "must be IMAGE, VIDEO, AUDIO, DOCUMENT or STICKER"
	case "conversation_status":
		return "must be OPEN, PENDING, RESOLVED or CLOSED"
	default:
		return fmt.Sprintf("failed '%s' validation", e.Tag())
	}
}
