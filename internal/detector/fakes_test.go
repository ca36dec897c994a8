package detector

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/gmsas95/medwatch/internal/push"
	"github.com/gmsas95/medwatch/internal/store"
)

type memStore struct {
	mu      sync.Mutex
	groups  []store.PatientGroup
	tablets map[string][]store.Tablet
	users   map[string]*store.User
	logs    map[string]map[string]*store.MedicationLog

	listGroupsErr error
	listTabletErr map[string]error
	userErr       map[string]error
	createErr     error
	panicOn       string
}

func newMemStore() *memStore {
	return &memStore{
		tablets:       make(map[string][]store.Tablet),
		users:         make(map[string]*store.User),
		logs:          make(map[string]map[string]*store.MedicationLog),
		listTabletErr: make(map[string]error),
		userErr:       make(map[string]error),
	}
}

func (m *memStore) addUser(id, name, token string) {
	u := &store.User{ID: id, FullName: name}
	if token != "" {
		u.FCMToken = &token
	}
	m.users[id] = u
}

func (m *memStore) addGroup(g store.PatientGroup, tablets ...store.Tablet) {
	m.groups = append(m.groups, g)
	for i := range tablets {
		tablets[i].PatientGroupID = g.ID
	}
	m.tablets[g.ID] = append(m.tablets[g.ID], tablets...)
}

func (m *memStore) putLog(l *store.MedicationLog) {
	if m.logs[l.PatientGroupID] == nil {
		m.logs[l.PatientGroupID] = make(map[string]*store.MedicationLog)
	}
	m.logs[l.PatientGroupID][l.ID] = l
}

func (m *memStore) logCount(groupID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs[groupID])
}

func (m *memStore) ListPatientGroups(ctx context.Context) ([]store.PatientGroup, error) {
	if m.listGroupsErr != nil {
		return nil, m.listGroupsErr
	}
	return append([]store.PatientGroup(nil), m.groups...), nil
}

func (m *memStore) GetPatientGroup(ctx context.Context, id string) (*store.PatientGroup, error) {
	for i := range m.groups {
		if m.groups[i].ID == id {
			g := m.groups[i]
			return &g, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListTablets(ctx context.Context, groupID string) ([]store.Tablet, error) {
	if err := m.listTabletErr[groupID]; err != nil {
		return nil, err
	}
	return append([]store.Tablet(nil), m.tablets[groupID]...), nil
}

func (m *memStore) GetUser(ctx context.Context, id string) (*store.User, error) {
	if err := m.userErr[id]; err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *memStore) MedicationLogExists(ctx context.Context, groupID, logID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.logs[groupID][logID]
	return ok, nil
}

func (m *memStore) CreateMedicationLog(ctx context.Context, l *store.MedicationLog) error {
	if m.panicOn != "" && l.TabletID == m.panicOn {
		panic("storage exploded")
	}
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logs[l.PatientGroupID][l.ID]; ok {
		return store.ErrLogExists
	}
	if m.logs[l.PatientGroupID] == nil {
		m.logs[l.PatientGroupID] = make(map[string]*store.MedicationLog)
	}
	cp := *l
	m.logs[l.PatientGroupID][l.ID] = &cp
	return nil
}

type fakeTransport struct {
	calls []*push.Message
	err   error
}

func (f *fakeTransport) SendMulticast(ctx context.Context, msg *push.Message) (*push.BatchResponse, error) {
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return nil, f.err
	}
	resp := &push.BatchResponse{SuccessCount: len(msg.Tokens)}
	for _, tok := range msg.Tokens {
		resp.Responses = append(resp.Responses, push.SendResult{Token: tok, MessageID: "m-" + tok})
	}
	return resp, nil
}

var errBoom = stderrors.New("boom")
