// Package aggregates reads behavioral aggregates and the user population
// from the profile store. Nothing is cached; every call re-queries.
package aggregates

import (
	"context"
	"sort"
	"strings"
	"time"

	"segmentation_backend/internal/segmentation/domain"
	"segmentation_backend/internal/unomi"
	"segmentation_backend/platform/apperr"
	"segmentation_backend/platform/logger"
)

// Profile properties used in store conditions. Click profiles carry the
// user under "userID", purchases and claims under "userId".
const (
	propClickUserID = "properties.userID"
	propUserID      = "properties.userId"
	propPolicyName  = "properties.policyName"
	propItemType    = "properties.itemType"
	propStatus      = "properties.status"
	propLoginTime   = "properties.loginTime"

	itemTypePurchasedPolicy = "Purchased Policy"

	defaultPageSize = 1000
	// maxPages bounds a population sweep if the store keeps returning full pages.
	maxPages = 10000
)

// ProfileStore is the subset of the profile store client the reader needs.
type ProfileStore interface {
	CountMatching(ctx context.Context, condition unomi.Condition) (int64, error)
	SearchProfiles(ctx context.Context, condition unomi.Condition, offset, limit int) (unomi.ProfileList, error)
}

// Reader computes per-user aggregates and enumerates the population.
type Reader struct {
	store            ProfileStore
	pageSize         int
	inactivityWindow time.Duration
	log              *logger.Logger
}

// New creates a reader. pageSize bounds each search request; inactivityWindow
// is the login age beyond which a user counts as inactive.
func New(store ProfileStore, pageSize int, inactivityWindow time.Duration, log *logger.Logger) *Reader {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Reader{
		store:            store,
		pageSize:         pageSize,
		inactivityWindow: inactivityWindow,
		log:              log,
	}
}

// CategoryClickCount counts the user's clicks on one policy category.
func (r *Reader) CategoryClickCount(ctx context.Context, userID, category string) (int64, error) {
	count, err := r.store.CountMatching(ctx, unomi.And(
		unomi.PropertyEquals(propPolicyName, category),
		unomi.PropertyEquals(propClickUserID, userID),
	))
	if err != nil {
		return 0, apperr.UpstreamRead("unomi: count category clicks", err)
	}
	return count, nil
}

// TotalClickCount counts all of the user's clicks.
func (r *Reader) TotalClickCount(ctx context.Context, userID string) (int64, error) {
	count, err := r.store.CountMatching(ctx, unomi.PropertyEquals(propClickUserID, userID))
	if err != nil {
		return 0, apperr.UpstreamRead("unomi: count total clicks", err)
	}
	return count, nil
}

// PurchasedPolicyCount counts the user's purchased policies.
func (r *Reader) PurchasedPolicyCount(ctx context.Context, userID string) (int64, error) {
	count, err := r.store.CountMatching(ctx, unomi.And(
		unomi.PropertyEquals(propItemType, itemTypePurchasedPolicy),
		unomi.PropertyEquals(propUserID, userID),
	))
	if err != nil {
		return 0, apperr.UpstreamRead("unomi: count purchased policies", err)
	}
	return count, nil
}

// TotalClaimAmount sums the amount of every claim the user filed.
// Claims without a readable amount count as zero.
func (r *Reader) TotalClaimAmount(ctx context.Context, userID string) (float64, error) {
	var total float64
	err := r.each(ctx, unomi.And(
		unomi.PropertyExists(propStatus),
		unomi.PropertyEquals(propUserID, userID),
	), func(p unomi.Profile) {
		if p.Properties.Amount.Valid {
			total += p.Properties.Amount.Value
		}
	})
	if err != nil {
		return 0, apperr.UpstreamRead("unomi: sum claim amounts", err)
	}
	return total, nil
}

// LastLoginAt returns the user's most recent login, or the zero time when the
// store has none.
func (r *Reader) LastLoginAt(ctx context.Context, userID string) (time.Time, error) {
	var latest time.Time
	err := r.each(ctx, unomi.And(
		unomi.PropertyExists(propLoginTime),
		unomi.PropertyEquals(propUserID, userID),
	), func(p unomi.Profile) {
		if p.Properties.LoginTime.Valid && p.Properties.LoginTime.Time.After(latest) {
			latest = p.Properties.LoginTime.Time
		}
	})
	if err != nil {
		return time.Time{}, apperr.UpstreamRead("unomi: read last login", err)
	}
	return latest, nil
}

// ListUsers enumerates every profile that carries a user id, email and first
// name. Duplicate user ids keep their first position and the last identity seen.
func (r *Reader) ListUsers(ctx context.Context) ([]domain.UserIdentity, error) {
	index := make(map[string]int)
	users := make([]domain.UserIdentity, 0)
	skipped := 0

	err := r.each(ctx, unomi.MatchAll(), func(p unomi.Profile) {
		identity, ok := identityOf(p)
		if !ok {
			skipped++
			return
		}
		if i, seen := index[identity.UserID]; seen {
			users[i] = identity
			return
		}
		index[identity.UserID] = len(users)
		users = append(users, identity)
	})
	if err != nil {
		return nil, apperr.UpstreamRead("unomi: list profiles", err)
	}

	r.log.Debug("listed user population", "users", len(users), "skipped", skipped)
	return users, nil
}

// ListInactiveUsers enumerates users whose latest login is strictly older than
// now minus the inactivity window.
func (r *Reader) ListInactiveUsers(ctx context.Context, now time.Time) ([]domain.InactiveUser, error) {
	index := make(map[string]int)
	users := make([]domain.InactiveUser, 0)

	err := r.each(ctx, unomi.PropertyExists(propLoginTime), func(p unomi.Profile) {
		identity, ok := identityOf(p)
		if !ok || !p.Properties.LoginTime.Valid {
			return
		}
		login := p.Properties.LoginTime.Time
		if i, seen := index[identity.UserID]; seen {
			if login.After(users[i].LastLoginAt) {
				users[i] = domain.InactiveUser{UserIdentity: identity, LastLoginAt: login}
			}
			return
		}
		index[identity.UserID] = len(users)
		users = append(users, domain.InactiveUser{UserIdentity: identity, LastLoginAt: login})
	})
	if err != nil {
		return nil, apperr.UpstreamRead("unomi: list login profiles", err)
	}

	// A newer login on a later page can pull a user back under the cutoff,
	// so the window is applied after dedup.
	cutoff := now.Add(-r.inactivityWindow)
	inactive := users[:0]
	for _, u := range users {
		if u.LastLoginAt.Before(cutoff) {
			inactive = append(inactive, u)
		}
	}
	return inactive, nil
}

// ActiveProfiles counts profiles per email address, most frequent first.
func (r *Reader) ActiveProfiles(ctx context.Context) ([]domain.EmailActivity, error) {
	counts := make(map[string]int)
	err := r.each(ctx, unomi.MatchAll(), func(p unomi.Profile) {
		email := domain.NormalizeEmail(p.Properties.Email)
		if email != "" {
			counts[email]++
		}
	})
	if err != nil {
		return nil, apperr.UpstreamRead("unomi: list profiles", err)
	}

	out := make([]domain.EmailActivity, 0, len(counts))
	for email, count := range counts {
		out = append(out, domain.EmailActivity{Email: email, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

// each pages through every profile matching the condition.
func (r *Reader) each(ctx context.Context, condition unomi.Condition, fn func(unomi.Profile)) error {
	offset := 0
	for page := 0; page < maxPages; page++ {
		list, err := r.store.SearchProfiles(ctx, condition, offset, r.pageSize)
		if err != nil {
			return err
		}
		for _, p := range list.List {
			fn(p)
		}

		offset += len(list.List)
		if len(list.List) < r.pageSize {
			return nil
		}
		if list.TotalSize > 0 && int64(offset) >= list.TotalSize {
			return nil
		}
	}
	r.log.Warn("profile sweep stopped at page limit", "pages", maxPages, "offset", offset)
	return nil
}

func identityOf(p unomi.Profile) (domain.UserIdentity, bool) {
	props := p.Properties
	identity := domain.NewUserIdentity(props.UserID, props.FirstName, props.LastName, props.Email)
	if identity.UserID == "" || identity.Email == "" || strings.TrimSpace(props.FirstName) == "" {
		return domain.UserIdentity{}, false
	}
	return identity, true
}
