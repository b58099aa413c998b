package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"absence-api/internal/model"
)

// memAbsences is an in-memory absenceStore plus document lister with the
// same version semantics as the real repository.
type memAbsences struct {
	mu       sync.Mutex
	absences map[string]model.Absence
	docs     map[string][]model.Document
	saveErr  error
}

func newMemAbsences() *memAbsences {
	return &memAbsences{
		absences: map[string]model.Absence{},
		docs:     map[string][]model.Document{},
	}
}

func (m *memAbsences) Get(_ context.Context, id string) (model.Absence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.absences[id]
	if !ok {
		return model.Absence{}, model.ErrAbsenceNotFound
	}
	return a, nil
}

func (m *memAbsences) Create(_ context.Context, a model.Absence, docs []model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.absences[a.ID] = a
	m.docs[a.ID] = append([]model.Document(nil), docs...)
	return nil
}

func (m *memAbsences) Save(_ context.Context, a model.Absence, addDocs []model.Document, removeDocIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	current, ok := m.absences[a.ID]
	if !ok {
		return model.ErrAbsenceNotFound
	}
	if current.Version != a.Version {
		return model.ErrVersionConflict
	}
	a.Version++
	m.absences[a.ID] = a

	kept := make([]model.Document, 0, len(m.docs[a.ID]))
	for _, d := range m.docs[a.ID] {
		removed := false
		for _, id := range removeDocIDs {
			if d.ID == id {
				removed = true
				break
			}
		}
		if !removed {
			kept = append(kept, d)
		}
	}
	m.docs[a.ID] = append(kept, addDocs...)
	return nil
}

func (m *memAbsences) List(_ context.Context, q model.AbsenceQuery) ([]model.AbsenceRow, model.Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]model.AbsenceRow, 0)
	for _, a := range m.absences {
		if !q.Scope.Matches(a.OwnerID, a.Status) {
			continue
		}
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		if q.Type != nil && a.Type != *q.Type {
			continue
		}
		rows = append(rows, model.AbsenceRow{
			ID: a.ID, OwnerID: a.OwnerID, Type: a.Type, Status: a.Status,
			CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
		})
	}
	return rows, model.Meta{Total: len(rows)}, nil
}

func (m *memAbsences) Project(_ context.Context, q model.AbsenceQuery) ([]model.AbsenceExportRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]model.AbsenceExportRow, 0)
	for _, a := range m.absences {
		if !q.Scope.Matches(a.OwnerID, a.Status) {
			continue
		}
		rows = append(rows, model.AbsenceExportRow{
			StudentName: "Student " + a.OwnerID, Type: a.Type, Status: a.Status,
			StartDate: a.StartDate, EndDate: a.EndDate,
			DeclarationToDean: a.DeclarationToDean,
			CreatedAt:         a.CreatedAt, UpdatedAt: a.UpdatedAt,
		})
	}
	return rows, nil
}

func (m *memAbsences) ListByAbsence(_ context.Context, absenceID string) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Document(nil), m.docs[absenceID]...), nil
}

func (m *memAbsences) GetDocument(_ context.Context, id string) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, docs := range m.docs {
		for _, d := range docs {
			if d.ID == id {
				return d, nil
			}
		}
	}
	return model.Document{}, model.ErrDocumentNotFound
}

// memDocs adapts memAbsences to the document store contract.
type memDocs struct{ *memAbsences }

func (m memDocs) Get(ctx context.Context, id string) (model.Document, error) {
	return m.GetDocument(ctx, id)
}

// memBlobStore implements storage.Store in memory.
type memBlobStore struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	failSave bool
	saves    int
	deletes  []string
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: map[string][]byte{}}
}

func (s *memBlobStore) Save(content io.Reader, fileName string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failSave {
		return "", errors.New("blob store unavailable")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	ref := fmt.Sprintf("ref-%d-%s", s.saves, fileName)
	s.blobs[ref] = data
	return ref, nil
}

func (s *memBlobStore) Open(ref string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memBlobStore) Delete(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, ref)
	delete(s.blobs, ref)
	return nil
}

// memUsers is an in-memory userAdminStore.
type memUsers struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]model.User{}}
}

func (m *memUsers) FindByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (m *memUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *memUsers) Create(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) UpdateRoles(_ context.Context, id string, roles model.RoleSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	u.Roles = roles
	m.users[id] = u
	return nil
}

func (m *memUsers) List(_ context.Context, q model.UserQuery) ([]model.UserProfile, model.Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profiles := make([]model.UserProfile, 0)
	for _, u := range m.users {
		if q.Role != nil && !u.Roles.Has(*q.Role) {
			continue
		}
		profiles = append(profiles, u.Profile())
	}
	return profiles, model.Meta{Total: len(profiles)}, nil
}

func (m *memUsers) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

// memTokens is an in-memory tokenStore.
type memTokens struct {
	mu      sync.Mutex
	entries map[string]model.RevokedToken
}

func newMemTokens() *memTokens {
	return &memTokens{entries: map[string]model.RevokedToken{}}
}

func (m *memTokens) Find(_ context.Context, token string) (model.RevokedToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[token]
	if !ok {
		return model.RevokedToken{}, model.ErrTokenNotFound
	}
	return entry, nil
}

func (m *memTokens) Insert(_ context.Context, entry model.RevokedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[entry.Token]; !exists {
		m.entries[entry.Token] = entry
	}
	return nil
}

func (m *memTokens) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, token)
	return nil
}

func datePtr(value string) *time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return &t
}
