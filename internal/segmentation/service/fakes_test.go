package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"segmentation_backend/internal/mautic"
	"segmentation_backend/internal/segmentation/crm"
	"segmentation_backend/internal/segmentation/domain"
	"segmentation_backend/internal/segmentation/repository"
	"segmentation_backend/internal/segmentation/rules"
	"segmentation_backend/platform/apperr"
	"segmentation_backend/platform/config"
	"segmentation_backend/platform/logger"
)

type fakeReader struct {
	mu             sync.Mutex
	users          []domain.UserIdentity
	inactive       []domain.InactiveUser
	listErr        error
	purchases      map[string]int64
	claims         map[string]float64
	categoryClicks map[string]int64
	totalClicks    map[string]int64
	purchaseErr    map[string]error
	claimErr       map[string]error
	readCalls      int

	// block, when set, holds ListUsers until closed; started is closed on entry.
	block   chan struct{}
	started chan struct{}
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		purchases:      map[string]int64{},
		claims:         map[string]float64{},
		categoryClicks: map[string]int64{},
		totalClicks:    map[string]int64{},
		purchaseErr:    map[string]error{},
		claimErr:       map[string]error{},
	}
}

func (f *fakeReader) count() {
	f.mu.Lock()
	f.readCalls++
	f.mu.Unlock()
}

func (f *fakeReader) CategoryClickCount(_ context.Context, userID, category string) (int64, error) {
	f.count()
	return f.categoryClicks[userID+"|"+category], nil
}

func (f *fakeReader) TotalClickCount(_ context.Context, userID string) (int64, error) {
	f.count()
	return f.totalClicks[userID], nil
}

func (f *fakeReader) PurchasedPolicyCount(_ context.Context, userID string) (int64, error) {
	f.count()
	if err := f.purchaseErr[userID]; err != nil {
		return 0, err
	}
	return f.purchases[userID], nil
}

func (f *fakeReader) TotalClaimAmount(_ context.Context, userID string) (float64, error) {
	f.count()
	if err := f.claimErr[userID]; err != nil {
		return 0, err
	}
	return f.claims[userID], nil
}

func (f *fakeReader) ListUsers(ctx context.Context) ([]domain.UserIdentity, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.users, nil
}

func (f *fakeReader) ListInactiveUsers(_ context.Context, _ time.Time) ([]domain.InactiveUser, error) {
	return f.inactive, nil
}

// memoryCRM behaves like the CRM API: fuzzy search, id assignment, idempotent adds.
type memoryCRM struct {
	mu         sync.Mutex
	nextID     int
	contacts   []mautic.Contact
	members    map[int]map[int]bool
	failCreate map[string]bool
	created    int
}

func newMemoryCRM() *memoryCRM {
	return &memoryCRM{nextID: 100, members: map[int]map[int]bool{}, failCreate: map[string]bool{}}
}

func (m *memoryCRM) SearchContacts(_ context.Context, email string) ([]mautic.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mautic.Contact
	for _, c := range m.contacts {
		if strings.Contains(strings.ToLower(c.Email), strings.ToLower(email)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryCRM) CreateContact(_ context.Context, name, email string) (mautic.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate[email] {
		return mautic.Contact{}, errors.New("crm unavailable")
	}
	c := mautic.Contact{ID: m.nextID, Name: name, Email: email}
	m.nextID++
	m.created++
	m.contacts = append(m.contacts, c)
	return c, nil
}

func (m *memoryCRM) AddContactToSegment(_ context.Context, contactID, segmentID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[segmentID] == nil {
		m.members[segmentID] = map[int]bool{}
	}
	m.members[segmentID][contactID] = true
	return nil
}

func (m *memoryCRM) contactID(email string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.Email == email {
			return c.ID
		}
	}
	return 0
}

// membership returns "segment:contact" pairs for comparing CRM state.
func (m *memoryCRM) membership() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{}
	for segment, contacts := range m.members {
		for contact := range contacts {
			out[pairKey(segment, contact)] = true
		}
	}
	return out
}

func pairKey(segment, contact int) string {
	return fmt.Sprintf("%d:%d", segment, contact)
}

type fakeDirectory struct {
	users map[string]domain.UserIdentity
}

func (d *fakeDirectory) FindUserByID(_ context.Context, userID string) (domain.UserIdentity, error) {
	u, ok := d.users[userID]
	if !ok {
		return domain.UserIdentity{}, apperr.Wrap(apperr.KindNotFound, "user not found", repository.ErrNotFound)
	}
	return u, nil
}

type fakeRunStore struct {
	mu       sync.Mutex
	created  []repository.RunRecord
	finished []repository.RunRecord
	results  map[uuid.UUID][]repository.ResultRecord
}

func (s *fakeRunStore) CreateRun(_ context.Context, run repository.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, run)
	return nil
}

func (s *fakeRunStore) FinishRun(_ context.Context, run repository.RunRecord, results []repository.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, run)
	if s.results == nil {
		s.results = map[uuid.UUID][]repository.ResultRecord{}
	}
	s.results[run.ID] = results
	return nil
}

func (s *fakeRunStore) GetRun(_ context.Context, id uuid.UUID) (repository.RunRecord, []repository.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.finished {
		if run.ID == id {
			return run, s.results[id], nil
		}
	}
	return repository.RunRecord{}, nil, apperr.Wrap(apperr.KindNotFound, "sync run not found", repository.ErrNotFound)
}

type fakeLock struct {
	acquired bool
	released bool
}

func (l *fakeLock) Acquire(context.Context) (func(context.Context), bool, error) {
	if !l.acquired {
		return nil, false, nil
	}
	return func(context.Context) { l.released = true }, true, nil
}

func testLogger() *logger.Logger {
	return logger.New("development")
}

var fixedNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestOrchestrator(reader *fakeReader, store *memoryCRM, opts ...OrchestratorOption) *Orchestrator {
	return newGatedOrchestrator(reader, store, config.TriggerModeExact, nil, opts...)
}

func newGatedOrchestrator(reader *fakeReader, store *memoryCRM, mode string, observations rules.ObservationStore, opts ...OrchestratorOption) *Orchestrator {
	log := testLogger()
	ruleSet := rules.New(rules.DefaultSettings())
	gate := rules.NewGate(ruleSet, mode, observations)
	opts = append([]OrchestratorOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewOrchestrator(reader, ruleSet, gate, crm.NewUpserter(store, log), crm.NewAssigner(store, log), 4, log, opts...)
}

func newTestTrigger(reader *fakeReader, directory *fakeDirectory, store *memoryCRM) *Trigger {
	return newGatedTrigger(reader, directory, store, config.TriggerModeExact, nil)
}

func newGatedTrigger(reader *fakeReader, directory *fakeDirectory, store *memoryCRM, mode string, observations rules.ObservationStore) *Trigger {
	log := testLogger()
	ruleSet := rules.New(rules.DefaultSettings())
	gate := rules.NewGate(ruleSet, mode, observations)
	return NewTrigger(reader, directory, ruleSet, gate, crm.NewUpserter(store, log), crm.NewAssigner(store, log), log)
}

// memoryObservations is an in-memory rules.ObservationStore.
type memoryObservations struct {
	mu     sync.Mutex
	values map[string]float64
}

func newMemoryObservations() *memoryObservations {
	return &memoryObservations{values: map[string]float64{}}
}

func (m *memoryObservations) LastObservation(_ context.Context, userID, key string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[userID+"|"+key]
	return v, ok, nil
}

func (m *memoryObservations) RecordObservation(_ context.Context, userID, key string, value float64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[userID+"|"+key] = value
	return nil
}
