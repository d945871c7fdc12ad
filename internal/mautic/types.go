package mautic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Contact is a CRM contact as far as this backend cares about it.
type Contact struct {
	ID    int
	Name  string
	Email string
}

// apiContact is the raw contact shape. Mautic nests profile fields under
// fields.all; some endpoints and older versions also put email at top level.
type apiContact struct {
	ID     flexibleInt `json:"id"`
	Email  string      `json:"email"`
	Fields struct {
		All struct {
			Email     string `json:"email"`
			FirstName string `json:"firstname"`
			LastName  string `json:"lastname"`
		} `json:"all"`
	} `json:"fields"`
}

func (a apiContact) toContact() Contact {
	email := a.Fields.All.Email
	if email == "" {
		email = a.Email
	}
	name := strings.TrimSpace(a.Fields.All.FirstName + " " + a.Fields.All.LastName)
	return Contact{ID: int(a.ID), Name: name, Email: email}
}

// contactsResponse decodes GET /api/contacts. Mautic serializes an empty
// result set as [] and a non-empty one as an object keyed by contact id.
type contactsResponse struct {
	Total    flexibleInt     `json:"total"`
	Contacts json.RawMessage `json:"contacts"`
}

func (r contactsResponse) list() ([]Contact, error) {
	raw := bytes.TrimSpace(r.Contacts)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Contact{}, nil
	}

	switch raw[0] {
	case '[':
		var items []apiContact
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode contacts array: %w", err)
		}
		out := make([]Contact, 0, len(items))
		for _, item := range items {
			out = append(out, item.toContact())
		}
		return out, nil
	case '{':
		var byID map[string]apiContact
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil, fmt.Errorf("decode contacts object: %w", err)
		}
		out := make([]Contact, 0, len(byID))
		for _, item := range byID {
			out = append(out, item.toContact())
		}
		// Map iteration order is random; keep "first match" stable by id.
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected contacts payload")
	}
}

type createContactRequest struct {
	FirstName string `json:"firstname"`
	Email     string `json:"email"`
}

type createContactResponse struct {
	Contact *apiContact `json:"contact"`
}

type segmentChangeResponse struct {
	Success flexibleInt `json:"success"`
}

// flexibleInt accepts a JSON number, numeric string or boolean.
type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch trimmed {
	case "", "null":
		*f = 0
		return nil
	case "true":
		*f = 1
		return nil
	case "false":
		*f = 0
		return nil
	}
	trimmed = strings.Trim(trimmed, `"`)
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return fmt.Errorf("invalid integer %q", trimmed)
	}
	*f = flexibleInt(value)
	return nil
}
