package webhook

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// FakeInboundMessage returns a text message delivery for phoneNumberID from
// a random sender. An empty wamid is generated; the one used is returned.
func FakeInboundMessage(phoneNumberID, wamid string, at time.Time) ([]byte, string, error) {
	if wamid == "" {
		wamid = "wamid." + gofakeit.UUID()
	}
	from := gofakeit.Numerify("62812########")

	msg, err := json.Marshal(WireMessage{
		From:      from,
		ID:        wamid,
		Timestamp: strconv.FormatInt(at.Unix(), 10),
		Type:      "text",
		Text:      &WireText{Body: gofakeit.Sentence(gofakeit.Number(3, 12))},
	})
	if err != nil {
		return nil, "", err
	}

	contact := WireContact{WaID: from}
	contact.Profile.Name = gofakeit.Name()

	body, err := fakeEnvelope(phoneNumberID, ChangeValue{
		Contacts: []WireContact{contact},
		Messages: []json.RawMessage{msg},
	})
	return body, wamid, err
}

// FakeStatus returns a delivery report for wamid.
func FakeStatus(phoneNumberID, wamid, status string, at time.Time) ([]byte, error) {
	st, err := json.Marshal(WireStatus{
		ID:          wamid,
		Status:      status,
		Timestamp:   strconv.FormatInt(at.Unix(), 10),
		RecipientID: gofakeit.Numerify("62812########"),
	})
	if err != nil {
		return nil, err
	}
	return fakeEnvelope(phoneNumberID, ChangeValue{Statuses: []json.RawMessage{st}})
}

func fakeEnvelope(phoneNumberID string, value ChangeValue) ([]byte, error) {
	value.MessagingProduct = "whatsapp"
	value.Metadata = Metadata{
		DisplayPhoneNumber: gofakeit.Numerify("1555#######"),
		PhoneNumberID:      phoneNumberID,
	}
	return json.Marshal(Envelope{
		Object: ObjectWhatsAppBusinessAccount,
		Entry: []Entry{{
			ID:      gofakeit.Numerify("1########"),
			Changes: []Change{{Field: FieldMessages, Value: value}},
		}},
	})
}
