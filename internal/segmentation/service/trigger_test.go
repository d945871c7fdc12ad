package service

import (
	"context"
	"testing"

	"segmentation_backend/internal/segmentation/domain"
	"segmentation_backend/platform/apperr"
)

func directoryWith(users ...domain.UserIdentity) *fakeDirectory {
	d := &fakeDirectory{users: map[string]domain.UserIdentity{}}
	for _, u := range users {
		d.users[u.UserID] = u
	}
	return d
}

func TestCheckClicksValidatesBeforeCalls(t *testing.T) {
	reader := newFakeReader()
	trigger := newTestTrigger(reader, directoryWith(), newMemoryCRM())

	inputs := []CheckClicksInput{
		{UserID: "", PolicyCategory: "Health"},
		{UserID: "u1", PolicyCategory: " "},
	}
	for _, in := range inputs {
		_, err := trigger.CheckClicks(context.Background(), in)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}
	if reader.readCalls != 0 {
		t.Fatalf("expected no profile store calls, got %d", reader.readCalls)
	}
}

func TestCheckClicksUnknownUser(t *testing.T) {
	reader := newFakeReader()
	trigger := newTestTrigger(reader, directoryWith(), newMemoryCRM())

	_, err := trigger.CheckClicks(context.Background(), CheckClicksInput{UserID: "ghost", PolicyCategory: "Life"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if reader.readCalls != 0 {
		t.Fatal("expected no profile store calls for unknown user")
	}
}

func TestCheckClicksCategoryBoundary(t *testing.T) {
	user := domain.UserIdentity{UserID: "u1", Name: "Ann", Email: "ann@example.com"}

	cases := []struct {
		clicks   int64
		assigned bool
	}{
		{9, false},
		{10, true},
		{11, false},
	}
	for _, tc := range cases {
		reader := newFakeReader()
		reader.categoryClicks["u1|Travel"] = tc.clicks
		reader.totalClicks["u1"] = tc.clicks
		store := newMemoryCRM()

		got, err := newTestTrigger(reader, directoryWith(user), store).CheckClicks(context.Background(), CheckClicksInput{UserID: "u1", PolicyCategory: "Travel"})
		if err != nil {
			t.Fatalf("clicks %d: unexpected error: %v", tc.clicks, err)
		}
		if got.SpecificPolicyClickCount != tc.clicks {
			t.Fatalf("clicks %d: unexpected count %d", tc.clicks, got.SpecificPolicyClickCount)
		}
		if got.Assigned != tc.assigned {
			t.Fatalf("clicks %d: expected assigned=%v, got %+v", tc.clicks, tc.assigned, got)
		}
		if tc.assigned && !store.membership()[pairKey(5, store.contactID("ann@example.com"))] {
			t.Fatalf("clicks %d: expected Travel segment 5", tc.clicks)
		}
	}
}

func TestCheckClicksEngagedWithoutPurchase(t *testing.T) {
	user := domain.UserIdentity{UserID: "u1", Name: "Ann", Email: "ann@example.com"}

	cases := []struct {
		total     int64
		purchases int64
		want      bool
	}{
		{100, 0, true},
		{100, 1, false},
		{500, 1, false},
		{99, 0, false},
	}
	for _, tc := range cases {
		reader := newFakeReader()
		reader.totalClicks["u1"] = tc.total
		reader.purchases["u1"] = tc.purchases
		store := newMemoryCRM()

		got, err := newTestTrigger(reader, directoryWith(user), store).CheckClicks(context.Background(), CheckClicksInput{UserID: "u1", PolicyCategory: "Auto"})
		if err != nil {
			t.Fatalf("total %d purchases %d: unexpected error: %v", tc.total, tc.purchases, err)
		}
		assigned := store.membership()[pairKey(10, store.contactID("ann@example.com"))]
		if assigned != tc.want || got.Assigned != tc.want {
			t.Fatalf("total %d purchases %d: expected %v, got %+v", tc.total, tc.purchases, tc.want, got)
		}
		if got.TotalClickCount != tc.total {
			t.Fatalf("expected total %d, got %d", tc.total, got.TotalClickCount)
		}
	}
}

func TestCheckClicksBothRulesShareOneContact(t *testing.T) {
	user := domain.UserIdentity{UserID: "u1", Name: "Ann", Email: "ann@example.com"}
	reader := newFakeReader()
	reader.categoryClicks["u1|Health"] = 10
	reader.totalClicks["u1"] = 120
	store := newMemoryCRM()

	got, err := newTestTrigger(reader, directoryWith(user), store).CheckClicks(context.Background(), CheckClicksInput{UserID: "u1", PolicyCategory: "Health"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Segments) != 2 || got.Segments[0] != 3 || got.Segments[1] != 10 {
		t.Fatalf("expected segments [3 10], got %v", got.Segments)
	}
	if store.created != 1 {
		t.Fatalf("expected one contact, got %d", store.created)
	}
}

func TestCheckClicksUpsertFailureIsUpstreamWrite(t *testing.T) {
	user := domain.UserIdentity{UserID: "u1", Name: "Ann", Email: "ann@example.com"}
	reader := newFakeReader()
	reader.categoryClicks["u1|Life"] = 10
	store := newMemoryCRM()
	store.failCreate["ann@example.com"] = true

	_, err := newTestTrigger(reader, directoryWith(user), store).CheckClicks(context.Background(), CheckClicksInput{UserID: "u1", PolicyCategory: "Life"})
	if !apperr.Is(err, apperr.KindUpstreamWrite) {
		t.Fatalf("expected upstream write error, got %v", err)
	}
}
