// Package crm materializes contacts and segment membership in the CRM.
// Both operations are safe to repeat: contacts are found by email before
// being created and segment adds are idempotent on the CRM side.
package crm

import (
	"context"

	"segmentation_backend/internal/mautic"
	"segmentation_backend/internal/segmentation/domain"
	"segmentation_backend/platform/apperr"
	"segmentation_backend/platform/logger"
)

// ContactDirectory finds and creates CRM contacts.
type ContactDirectory interface {
	SearchContacts(ctx context.Context, email string) ([]mautic.Contact, error)
	CreateContact(ctx context.Context, name, email string) (mautic.Contact, error)
}

// Upserter resolves a CRM contact id by email, creating the contact when missing.
type Upserter struct {
	contacts ContactDirectory
	log      *logger.Logger
}

// NewUpserter creates a contact upserter.
func NewUpserter(contacts ContactDirectory, log *logger.Logger) *Upserter {
	return &Upserter{contacts: contacts, log: log}
}

// Upsert returns the id of the contact with this email. The CRM search is
// fuzzy, so only exact case-insensitive matches count; the first one wins.
func (u *Upserter) Upsert(ctx context.Context, name, email string) (int, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return 0, apperr.Validation("contact email is required")
	}

	id, found, err := u.find(ctx, email)
	if err != nil {
		return 0, apperr.UpstreamWrite("mautic: search contact", err)
	}
	if found {
		return id, nil
	}

	created, createErr := u.contacts.CreateContact(ctx, name, email)
	if createErr == nil {
		u.log.Info("crm contact created", "contactId", created.ID, "email", email)
		return created.ID, nil
	}

	// Someone else may have created the contact between search and create.
	id, found, err = u.find(ctx, email)
	if err == nil && found {
		u.log.Info("crm contact appeared after failed create", "contactId", id, "email", email)
		return id, nil
	}
	return 0, apperr.UpstreamWrite("mautic: create contact", createErr)
}

func (u *Upserter) find(ctx context.Context, email string) (int, bool, error) {
	contacts, err := u.contacts.SearchContacts(ctx, email)
	if err != nil {
		return 0, false, err
	}

	var matches []int
	for _, c := range contacts {
		if c.ID > 0 && domain.NormalizeEmail(c.Email) == email {
			matches = append(matches, c.ID)
		}
	}
	if len(matches) == 0 {
		return 0, false, nil
	}
	if len(matches) > 1 {
		u.log.Warn("multiple crm contacts share an email", "email", email, "contactIds", matches, "using", matches[0])
	}
	return matches[0], true, nil
}
