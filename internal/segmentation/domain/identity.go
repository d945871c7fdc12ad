// Package domain holds the segmentation types shared across the reader,
// rule, CRM and orchestration layers.
package domain

import (
	"strings"
	"time"
)

// UserIdentity identifies a user against the profile store and the CRM.
// Email is the dedup key for CRM contacts and is always normalized.
type UserIdentity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// InactiveUser is a user together with the latest login the store knows of.
type InactiveUser struct {
	UserIdentity
	LastLoginAt time.Time `json:"lastLoginAt"`
}

// NewUserIdentity builds an identity with a normalized email and a display
// name made of the first name plus an optional last name.
func NewUserIdentity(userID, firstName, lastName, email string) UserIdentity {
	return UserIdentity{
		UserID: strings.TrimSpace(userID),
		Name:   strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName)),
		Email:  NormalizeEmail(email),
	}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailActivity is the number of profiles carrying one email address.
type EmailActivity struct {
	Email string `json:"email"`
	Count int    `json:"count"`
}
