package unomi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"segmentation_backend/platform/logger"
)

type testConfig struct {
	url string
}

func (c testConfig) GetUnomiURL() string            { return c.url }
func (c testConfig) GetUnomiUser() string           { return "karaf" }
func (c testConfig) GetUnomiPassword() string       { return "karaf" }
func (c testConfig) GetUnomiTimeout() time.Duration { return 2 * time.Second }
func (c testConfig) GetUnomiRateLimit() float64     { return 0 }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(testConfig{url: srv.URL}, logger.New("development"))
}

func TestCountMatchingSendsConditionWithBasicAuth(t *testing.T) {
	var got Condition
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != countPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "karaf" || pass != "karaf" {
			t.Errorf("expected basic auth credentials")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode condition: %v", err)
		}
		_, _ = w.Write([]byte("10"))
	})

	count, err := client.CountMatching(context.Background(), And(
		PropertyEquals("properties.policyName", "Health"),
		PropertyEquals("properties.userID", "u1"),
	))
	if err != nil {
		t.Fatalf("CountMatching returned error: %v", err)
	}
	if count != 10 {
		t.Fatalf("expected count 10, got %d", count)
	}
	if got.Type != ConditionBoolean || got.ParameterValues.Operator != "and" || len(got.ParameterValues.SubConditions) != 2 {
		t.Fatalf("unexpected condition sent: %+v", got)
	}
	if got.ParameterValues.SubConditions[1].ParameterValues.PropertyValue != "u1" {
		t.Fatalf("expected user id sub condition, got %+v", got.ParameterValues.SubConditions[1])
	}
}

func TestCountMatchingAcceptsWrappedTotalSize(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"totalSize": 12}`))
	})

	count, err := client.CountMatching(context.Background(), MatchAll())
	if err != nil {
		t.Fatalf("CountMatching returned error: %v", err)
	}
	if count != 12 {
		t.Fatalf("expected 12, got %d", count)
	}
}

func TestCountMatchingRejectsMalformedBodies(t *testing.T) {
	for _, body := range []string{"", `{"list": []}`, `"ten"`, `-1`} {
		body := body
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		if _, err := client.CountMatching(context.Background(), MatchAll()); err == nil {
			t.Fatalf("expected error for body %q", body)
		}
	}
}

func TestSearchProfilesDecodesTypedProperties(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode search request: %v", err)
		}
		if req.Offset != 0 || req.Limit != 50 || req.Condition.Type != ConditionMatchAll {
			t.Errorf("unexpected search request %+v", req)
		}
		_, _ = w.Write([]byte(`{
			"list": [
				{"itemId": "p1", "properties": {"userId": "u1", "firstName": "Ann", "lastName": "Lee", "email": "a@x.com", "amount": "2500.50", "loginTime": "2026-09-01T10:00:00Z"}},
				{"itemId": "p2", "properties": {"userID": "u2", "policyName": "Life", "amount": "n/a", "loginTime": 1767225600000}}
			],
			"offset": 0, "pageSize": 50, "totalSize": 2
		}`))
	})

	list, err := client.SearchProfiles(context.Background(), MatchAll(), 0, 50)
	if err != nil {
		t.Fatalf("SearchProfiles returned error: %v", err)
	}
	if len(list.List) != 2 || list.TotalSize != 2 {
		t.Fatalf("unexpected list %+v", list)
	}

	first := list.List[0].Properties
	if first.UserID != "u1" || first.Email != "a@x.com" || !first.Amount.Valid || first.Amount.Value != 2500.50 {
		t.Fatalf("unexpected first profile %+v", first)
	}
	if !first.LoginTime.Valid || !first.LoginTime.Time.Equal(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected login time %+v", first.LoginTime)
	}

	second := list.List[1].Properties
	if second.ClickerID != "u2" || second.UserID != "" {
		t.Fatalf("expected userID spelling to land in ClickerID, got %+v", second)
	}
	if second.Amount.Valid {
		t.Fatalf("expected unparsable amount to be invalid")
	}
	if !second.LoginTime.Valid || second.LoginTime.Time.UnixMilli() != 1767225600000 {
		t.Fatalf("expected epoch millis login time, got %+v", second.LoginTime)
	}
}

func TestSearchProfilesReturnsStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("elasticsearch down"))
	})

	_, err := client.SearchProfiles(context.Background(), MatchAll(), 0, 10)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", statusErr.StatusCode)
	}
}

func TestTrackEventForwardsBodyWithoutAuth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != eventCollectorPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if _, _, ok := r.BasicAuth(); ok {
			t.Errorf("event collector must not receive credentials")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"events":[]}` {
			t.Errorf("unexpected body %s", body)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"updated":0}`))
	})

	status, body, err := client.TrackEvent(context.Background(), []byte(`{"events":[]}`))
	if err != nil {
		t.Fatalf("TrackEvent returned error: %v", err)
	}
	if status != http.StatusAccepted || string(body) != `{"updated":0}` {
		t.Fatalf("unexpected response %d %s", status, body)
	}
}

func TestMatchAllSerializesEmptyParameters(t *testing.T) {
	data, err := json.Marshal(MatchAll())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"matchAllCondition","parameterValues":{}}` {
		t.Fatalf("unexpected JSON %s", data)
	}
}
