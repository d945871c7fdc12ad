// Package mautic provides the HTTP client for the Mautic CRM API.
package mautic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"segmentation_backend/platform/config"
	"segmentation_backend/platform/logger"

	"golang.org/x/time/rate"
)

const maxErrorBody = 4 << 10

// StatusError is returned when Mautic answers with a non-success status.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mautic %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Client is the HTTP client for the Mautic REST API.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a new Mautic API client.
func New(cfg config.CRMConfig, log *logger.Logger) *Client {
	timeout := cfg.GetMauticTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond := cfg.GetMauticRateLimit(); perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}

	return &Client{
		baseURL:    cfg.GetMauticURL(),
		user:       cfg.GetMauticUser(),
		password:   cfg.GetMauticPassword(),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		log:        log,
	}
}

// SearchContacts runs the CRM contact search for an email address. The
// search is fuzzy on the Mautic side; callers must filter exact matches.
func (c *Client) SearchContacts(ctx context.Context, email string) ([]Contact, error) {
	params := url.Values{}
	params.Set("search", email)

	body, err := c.do(ctx, "search contacts", http.MethodGet, "/api/contacts?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp contactsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode contacts response: %w", err)
	}
	return resp.list()
}

// CreateContact creates a new contact and returns it with the CRM-assigned id.
func (c *Client) CreateContact(ctx context.Context, name, email string) (Contact, error) {
	body, err := c.do(ctx, "create contact", http.MethodPost, "/api/contacts/new", createContactRequest{
		FirstName: name,
		Email:     email,
	})
	if err != nil {
		return Contact{}, err
	}

	var resp createContactResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Contact{}, fmt.Errorf("decode create contact response: %w", err)
	}
	if resp.Contact == nil || resp.Contact.ID <= 0 {
		return Contact{}, fmt.Errorf("create contact response missing contact id")
	}

	contact := resp.Contact.toContact()
	if contact.Email == "" {
		contact.Email = email
	}
	if contact.Name == "" {
		contact.Name = name
	}
	return contact, nil
}

// AddContactToSegment adds a contact to a segment. Mautic treats adding an
// existing member as success.
func (c *Client) AddContactToSegment(ctx context.Context, contactID, segmentID int) error {
	path := fmt.Sprintf("/api/segments/%d/contact/%d/add", segmentID, contactID)
	body, err := c.do(ctx, "add contact to segment", http.MethodPost, path, nil)
	if err != nil {
		return err
	}

	var resp segmentChangeResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decode segment response: %w", err)
		}
		if resp.Success == 0 {
			return fmt.Errorf("mautic rejected adding contact %d to segment %d", contactID, segmentID)
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", operation, err)
		}
		reqBody = bytes.NewReader(data)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("mautic request failed", "operation", operation, "error", err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		statusErr := &StatusError{Operation: operation, StatusCode: resp.StatusCode, Body: string(body)}
		c.log.UpstreamError("mautic", operation, resp.StatusCode, statusErr)
		return nil, statusErr
	}

	return body, nil
}
