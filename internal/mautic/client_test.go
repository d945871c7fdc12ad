package mautic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"segmentation_backend/platform/logger"
)

type testConfig struct {
	url string
}

func (c testConfig) GetMauticURL() string            { return c.url }
func (c testConfig) GetMauticUser() string           { return "admin" }
func (c testConfig) GetMauticPassword() string       { return "secret" }
func (c testConfig) GetMauticTimeout() time.Duration { return 2 * time.Second }
func (c testConfig) GetMauticRateLimit() float64     { return 0 }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(testConfig{url: srv.URL}, logger.New("development"))
}

func TestSearchContactsDecodesObjectKeyedByID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/contacts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("search"); got != "ann@example.com" {
			t.Errorf("expected search term, got %q", got)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			t.Errorf("expected basic auth credentials")
		}
		_, _ = w.Write([]byte(`{"total":"2","contacts":{
			"42":{"id":42,"fields":{"all":{"email":"ann@example.com","firstname":"Ann"}}},
			"7":{"id":"7","fields":{"all":{"email":"ann@example.com.au","firstname":"Ann"}}}
		}}`))
	})

	contacts, err := client.SearchContacts(context.Background(), "ann@example.com")
	if err != nil {
		t.Fatalf("SearchContacts returned error: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(contacts))
	}
	if contacts[0].ID != 7 || contacts[1].ID != 42 {
		t.Fatalf("expected contacts ordered by id, got %+v", contacts)
	}
	if contacts[1].Email != "ann@example.com" || contacts[1].Name != "Ann" {
		t.Fatalf("unexpected contact: %+v", contacts[1])
	}
}

func TestSearchContactsEmptyArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":0,"contacts":[]}`))
	})

	contacts, err := client.SearchContacts(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("SearchContacts returned error: %v", err)
	}
	if len(contacts) != 0 {
		t.Fatalf("expected no contacts, got %+v", contacts)
	}
}

func TestSearchContactsFlatEmail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"contacts":{"5":{"id":5,"email":"flat@example.com"}}}`))
	})

	contacts, err := client.SearchContacts(context.Background(), "flat@example.com")
	if err != nil {
		t.Fatalf("SearchContacts returned error: %v", err)
	}
	if len(contacts) != 1 || contacts[0].Email != "flat@example.com" {
		t.Fatalf("expected flat email to be read, got %+v", contacts)
	}
}

func TestCreateContactSendsFirstnameAndEmail(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/contacts/new" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"contact":{"id":99,"fields":{"all":{"email":"bo@example.com","firstname":"Bo"}}}}`))
	})

	contact, err := client.CreateContact(context.Background(), "Bo", "bo@example.com")
	if err != nil {
		t.Fatalf("CreateContact returned error: %v", err)
	}
	if contact.ID != 99 {
		t.Fatalf("expected id 99, got %d", contact.ID)
	}
	if got["firstname"] != "Bo" || got["email"] != "bo@example.com" {
		t.Fatalf("unexpected request body: %+v", got)
	}
}

func TestCreateContactRejectsMissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"contact":{}}`))
	})

	if _, err := client.CreateContact(context.Background(), "Bo", "bo@example.com"); err == nil {
		t.Fatalf("expected error for contact without id")
	}
}

func TestAddContactToSegmentPath(t *testing.T) {
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"success":1}`))
	})

	if err := client.AddContactToSegment(context.Background(), 12, 3); err != nil {
		t.Fatalf("AddContactToSegment returned error: %v", err)
	}
	if path != "/api/segments/3/contact/12/add" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestAddContactToSegmentUnsuccessful(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	})

	if err := client.AddContactToSegment(context.Background(), 12, 3); err == nil {
		t.Fatalf("expected error when success is false")
	}
}

func TestStatusErrorIsReturned(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"API authorization denied."}]}`))
	})

	err := client.AddContactToSegment(context.Background(), 1, 2)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized || statusErr.Operation != "add contact to segment" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
}
