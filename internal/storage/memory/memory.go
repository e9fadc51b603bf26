// Package memory provides an in-process implementation of storage.Store.
//
// It is the reference store used by tests and by STORAGE_BACKEND=memory.
// Every value handed in or out is deep-copied, so callers can never mutate
// stored records.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps everything in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	users       map[string]*models.User
	groups      map[string]*models.Group
	expenses    map[string]*models.Expense
	settlements map[string]*models.Settlement

	// per-group append order
	groupExpenses    map[string][]string
	groupSettlements map[string][]string

	// global settlement append order, breaks created_at ties
	settlementSeq map[string]uint64
	lastSeq       uint64

	now func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:            make(map[string]*models.User),
		groups:           make(map[string]*models.Group),
		expenses:         make(map[string]*models.Expense),
		settlements:      make(map[string]*models.Settlement),
		groupExpenses:    make(map[string][]string),
		groupSettlements: make(map[string][]string),
		settlementSeq:    make(map[string]uint64),
		now:              time.Now,
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyGroup(g *models.Group) *models.Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	return &c
}

func copyExpense(e *models.Expense) *models.Expense {
	c := *e
	c.Splits = make([]models.Split, len(e.Splits))
	for i, sp := range e.Splits {
		c.Splits[i] = sp
		if sp.Percentage != nil {
			p := *sp.Percentage
			c.Splits[i].Percentage = &p
		}
	}
	return &c
}

func copySettlement(st *models.Settlement) *models.Settlement {
	c := *st
	return &c
}

func notFound(kind, id string) error {
	return apperr.Newf(apperr.ErrNotFound, "%s %s not found", kind, id)
}

// CreateUser stores a new user.
func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	if _, ok := s.users[user.ID]; ok {
		return apperr.Newf(apperr.ErrConflict, "user %s already exists", user.ID)
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return apperr.Newf(apperr.ErrConflict, "email %s is already registered", user.Email)
		}
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, notFound("user", userID)
	}
	return copyUser(u), nil
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, notFound("user with email", email)
}

// GetUsers returns the known users among ids.
func (s *Store) GetUsers(_ context.Context, ids []string) (map[string]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = copyUser(u)
		}
	}
	return out, nil
}

// SearchUsers returns up to limit users whose email contains fragment,
// ordered by email.
func (s *Store) SearchUsers(_ context.Context, fragment string, limit int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(fragment)
	var out []*models.User
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.Email), needle) {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateGroup stores a new group.
func (s *Store) CreateGroup(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = s.now()
	}
	if _, ok := s.groups[group.ID]; ok {
		return apperr.Newf(apperr.ErrConflict, "group %s already exists", group.ID)
	}
	s.groups[group.ID] = copyGroup(group)
	return nil
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(_ context.Context, groupID string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, notFound("group", groupID)
	}
	return copyGroup(g), nil
}

// ListGroupsForUser returns userID's groups, newest first.
func (s *Store) ListGroupsForUser(_ context.Context, userID string) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Group
	for _, g := range s.groups {
		if g.HasMember(userID) {
			out = append(out, copyGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// AddGroupMember appends userID to the group.
func (s *Store) AddGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return notFound("group", groupID)
	}
	if g.HasMember(userID) {
		return apperr.Newf(apperr.ErrAlreadyMember, "user %s is already a member of group %s", userID, groupID)
	}
	g.Members = append(g.Members, userID)
	return nil
}

// RemoveGroupMember drops userID from the group.
func (s *Store) RemoveGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return notFound("group", groupID)
	}
	i := slices.Index(g.Members, userID)
	if i < 0 {
		return notFound("member", userID)
	}
	g.Members = slices.Delete(g.Members, i, i+1)
	return nil
}

// AppendExpense stores an expense.
func (s *Store) AppendExpense(_ context.Context, expense *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[expense.GroupID]; !ok {
		return notFound("group", expense.GroupID)
	}
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = s.now()
	}
	if _, ok := s.expenses[expense.ID]; ok {
		return apperr.Newf(apperr.ErrConflict, "expense %s already exists", expense.ID)
	}
	s.expenses[expense.ID] = copyExpense(expense)
	s.groupExpenses[expense.GroupID] = append(s.groupExpenses[expense.GroupID], expense.ID)
	return nil
}

// RemoveExpense deletes an expense.
func (s *Store) RemoveExpense(_ context.Context, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[expenseID]
	if !ok {
		return notFound("expense", expenseID)
	}
	delete(s.expenses, expenseID)
	ids := s.groupExpenses[e.GroupID]
	if i := slices.Index(ids, expenseID); i >= 0 {
		s.groupExpenses[e.GroupID] = slices.Delete(ids, i, i+1)
	}
	return nil
}

// GetExpense retrieves an expense by ID.
func (s *Store) GetExpense(_ context.Context, expenseID string) (*models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expenses[expenseID]
	if !ok {
		return nil, notFound("expense", expenseID)
	}
	return copyExpense(e), nil
}

// AppendSettlement stores a settlement.
func (s *Store) AppendSettlement(_ context.Context, settlement *models.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[settlement.GroupID]; !ok {
		return notFound("group", settlement.GroupID)
	}
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.CreatedAt.IsZero() {
		settlement.CreatedAt = s.now()
	}
	if _, ok := s.settlements[settlement.ID]; ok {
		return apperr.Newf(apperr.ErrConflict, "settlement %s already exists", settlement.ID)
	}
	s.settlements[settlement.ID] = copySettlement(settlement)
	s.groupSettlements[settlement.GroupID] = append(s.groupSettlements[settlement.GroupID], settlement.ID)
	s.lastSeq++
	s.settlementSeq[settlement.ID] = s.lastSeq
	return nil
}

// ListExpenses returns a group's expenses in append order.
func (s *Store) ListExpenses(_ context.Context, groupID string) ([]*models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listExpenses(groupID), nil
}

func (s *Store) listExpenses(groupID string) []*models.Expense {
	ids := s.groupExpenses[groupID]
	out := make([]*models.Expense, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyExpense(s.expenses[id]))
	}
	return out
}

// ListSettlements returns a group's settlements in append order.
func (s *Store) ListSettlements(_ context.Context, groupID string) ([]*models.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSettlements(groupID), nil
}

func (s *Store) listSettlements(groupID string) []*models.Settlement {
	ids := s.groupSettlements[groupID]
	out := make([]*models.Settlement, 0, len(ids))
	for _, id := range ids {
		out = append(out, copySettlement(s.settlements[id]))
	}
	return out
}

// ListSettlementsByUser returns the user's settlements across groups, newest first.
func (s *Store) ListSettlementsByUser(_ context.Context, userID string) ([]*models.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Settlement
	for _, st := range s.settlements {
		if st.References(userID) {
			out = append(out, copySettlement(st))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return s.settlementSeq[out[i].ID] > s.settlementSeq[out[j].ID]
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Snapshot copies the group and its ledger under one read lock.
func (s *Store) Snapshot(_ context.Context, groupID string) (*storage.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, notFound("group", groupID)
	}
	return &storage.Snapshot{
		Group:       copyGroup(g),
		Expenses:    s.listExpenses(groupID),
		Settlements: s.listSettlements(groupID),
	}, nil
}

// IsMemberReferenced scans the group's ledger for userID.
func (s *Store) IsMemberReferenced(_ context.Context, groupID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.groupExpenses[groupID] {
		if s.expenses[id].References(userID) {
			return true, nil
		}
	}
	for _, id := range s.groupSettlements[groupID] {
		if s.settlements[id].References(userID) {
			return true, nil
		}
	}
	return false, nil
}
