package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Fixture builders used by tests across packages. Each takes optional
// mutators applied after the fake defaults are filled in.

// NewOrganization creates an Organization with fake data.
func NewOrganization(mut ...func(*Organization)) *Organization {
	now := time.Now().UTC()
	o := &Organization{
		ID:                uuid.NewString(),
		Name:              gofakeit.Company(),
		PhoneNumberID:     gofakeit.DigitN(15),
		BusinessAccountID: gofakeit.DigitN(15),
		AccessToken:       "EAAG" + gofakeit.LetterN(40),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, m := range mut {
		m(o)
	}
	return o
}

// NewContact creates a Contact with fake data.
func NewContact(mut ...func(*Contact)) *Contact {
	now := time.Now().UTC()
	phone := "55" + gofakeit.DigitN(11)
	c := &Contact{
		ID:             uuid.NewString(),
		OrganizationID: uuid.NewString(),
		ExternalID:     phone,
		Phone:          phone,
		Name:           gofakeit.Name(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, m := range mut {
		m(c)
	}
	return c
}

// NewConversation creates an OPEN Conversation with an active session window.
func NewConversation(mut ...func(*Conversation)) *Conversation {
	now := time.Now().UTC()
	window := now.Add(SessionWindow)
	c := &Conversation{
		ID:              uuid.NewString(),
		OrganizationID:  uuid.NewString(),
		ContactID:       uuid.NewString(),
		Status:          ConversationOpen,
		WindowExpiresAt: &window,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, m := range mut {
		m(c)
	}
	return c
}

// NewTextMessage creates an inbound TEXT message with fake content.
func NewTextMessage(mut ...func(*Message)) *Message {
	now := time.Now().UTC()
	wamid := "wamid." + gofakeit.LetterN(24)
	content, _ := EncodeContent(TextContent{Body: gofakeit.Sentence(6)})
	m := &Message{
		ID:             uuid.NewString(),
		OrganizationID: uuid.NewString(),
		ConversationID: uuid.NewString(),
		Wamid:          &wamid,
		Direction:      DirectionInbound,
		Type:           MessageTypeText,
		Status:         MessageStatusDelivered,
		Content:        content,
		Timestamp:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, f := range mut {
		f(m)
	}
	return m
}

// RandomJSON returns a small random jsonb document.
func RandomJSON() datatypes.JSON {
	return datatypes.JSON(`{"k":"` + gofakeit.Word() + `"}`)
}
