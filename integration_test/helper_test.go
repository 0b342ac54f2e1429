//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/realtime"
)

// recordingSink keeps every envelope it is handed.
type recordingSink struct {
	name string
	mu   sync.Mutex
	envs []*realtime.Envelope
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Publish(_ context.Context, env *realtime.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *recordingSink) events(event string) []*realtime.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*realtime.Envelope
	for _, e := range r.envs {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

// fakeGraph answers the Cloud API endpoints the console calls. Every send
// gets a fresh wamid; mark-as-read calls are counted.
type fakeGraph struct {
	server *httptest.Server
	seq    atomic.Int64
	reads  atomic.Int64
}

func newFakeGraph() *fakeGraph {
	g := &fakeGraph{}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body["status"] == "read" {
			g.reads.Add(1)
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		id := fmt.Sprintf("wamid.out-%d", g.seq.Add(1))
		_, _ = fmt.Fprintf(w, `{"messaging_product":"whatsapp","messages":[{"id":%q}]}`, id)
	}))
	return g
}

func textPayload(phoneNumberID, wamid, from, name, body string, ts time.Time) []byte {
	return []byte(fmt.Sprintf(`{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA-1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550001111", "phone_number_id": %q},
        "contacts": [{"profile": {"name": %q}, "wa_id": %q}],
        "messages": [{"from": %q, "id": %q, "timestamp": "%d", "type": "text", "text": {"body": %q}}]
      }
    }]
  }]
}`, phoneNumberID, name, from, from, wamid, ts.Unix(), body))
}

func statusPayload(phoneNumberID, wamid, status string, ts time.Time) []byte {
	return []byte(fmt.Sprintf(`{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA-1",
    "changes": [{
      "field": "messages",
      "value": {
        "metadata": {"phone_number_id": %q},
        "statuses": [{"id": %q, "status": %q, "timestamp": "%d", "recipient_id": "628111"}]
      }
    }]
  }]
}`, phoneNumberID, wamid, status, ts.Unix()))
}
