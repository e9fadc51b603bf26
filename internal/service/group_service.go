package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/calculator"
	"github.com/mmynk/equalsplit/internal/events"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
	"github.com/mmynk/equalsplit/internal/storage"
)

const (
	maxGroupNameLen = 100
	maxUserNameLen  = 100
	maxSearchResult = 10
)

// GroupService manages the user directory and group membership.
type GroupService struct {
	base
}

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store storage.Store, opts ...Option) *GroupService {
	return &GroupService{base: newBase(store, opts)}
}

// RegisterUserRequest carries an identity taken from a verified token.
type RegisterUserRequest struct {
	ID    string
	Name  string
	Email string
}

// CreateGroupRequest creates a group owned by Requester.
type CreateGroupRequest struct {
	Name        string
	Description string
	Requester   string
}

// AddMemberRequest adds the user with Email to a group, creating the
// directory entry when nobody has that email yet.
type AddMemberRequest struct {
	GroupID   string
	Email     string
	Name      string
	Requester string
}

// GroupListing is a group as shown in the requester's group list.
type GroupListing struct {
	*models.Group
	MemberDetails []*models.User `json:"member_details"`
	UserBalance   money.Amount   `json:"user_balance"`
}

// RegisterUser makes sure the directory knows the authenticated identity.
// An existing entry is returned unchanged.
func (s *GroupService) RegisterUser(ctx context.Context, req RegisterUserRequest) (user *models.User, err error) {
	ctx, done := s.startOp(ctx, "RegisterUser")
	defer func() { done(err) }()

	if err := requireRequester(req.ID); err != nil {
		return nil, err
	}

	user, err = s.store.GetUser(ctx, req.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, apperr.Newf(apperr.ErrInvalidRequest, "email is required")
	}
	name, err := checkText("name", req.Name, maxUserNameLen)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = nameFromEmail(email)
	}

	user = &models.User{ID: req.ID, Name: name, Email: email, CreatedAt: s.now()}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("User registered", "user_id", user.ID)
	return user, nil
}

// SearchUsers finds users whose email contains fragment, excluding the
// requester.
func (s *GroupService) SearchUsers(ctx context.Context, fragment, requester string) (users []*models.User, err error) {
	ctx, done := s.startOp(ctx, "SearchUsers")
	defer func() { done(err) }()

	if err := requireRequester(requester); err != nil {
		return nil, err
	}
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, apperr.Newf(apperr.ErrInvalidRequest, "search fragment is required")
	}

	// One extra in case the requester is among the matches.
	found, err := s.store.SearchUsers(ctx, fragment, maxSearchResult+1)
	if err != nil {
		return nil, err
	}

	users = make([]*models.User, 0, len(found))
	for _, u := range found {
		if u.ID == requester {
			continue
		}
		users = append(users, u)
	}
	return users[:min(len(users), maxSearchResult)], nil
}

// CreateGroup creates a group with the requester as owner and only member.
func (s *GroupService) CreateGroup(ctx context.Context, req CreateGroupRequest) (group *models.Group, err error) {
	slog.Info("CreateGroup request received", "name", req.Name, "user_id", req.Requester)
	ctx, done := s.startOp(ctx, "CreateGroup")
	defer func() { done(err) }()

	if err := requireRequester(req.Requester); err != nil {
		return nil, err
	}
	name, err := checkText("name", req.Name, maxGroupNameLen)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apperr.Newf(apperr.ErrInvalidRequest, "group name is required")
	}
	description, err := checkText("description", req.Description, maxNoteLen)
	if err != nil {
		return nil, err
	}

	group = &models.Group{
		Name:        name,
		Description: description,
		CreatedBy:   req.Requester,
		Members:     []string{req.Requester},
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, err
	}

	slog.Info("Group created", "group_id", group.ID)
	return group, nil
}

// ListGroups returns the requester's groups, newest first, each with member
// details and the requester's net balance in it.
func (s *GroupService) ListGroups(ctx context.Context, requester string) (listings []GroupListing, err error) {
	slog.Info("ListGroups request received", "user_id", requester)
	ctx, done := s.startOp(ctx, "ListGroups")
	defer func() { done(err) }()

	if err := requireRequester(requester); err != nil {
		return nil, err
	}

	groups, err := s.store.ListGroupsForUser(ctx, requester)
	if err != nil {
		return nil, err
	}

	listings = make([]GroupListing, 0, len(groups))
	for _, g := range groups {
		snap, err := s.store.Snapshot(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		members, err := s.userDetails(ctx, snap.Group.Members)
		if err != nil {
			return nil, err
		}
		net := calculator.ComputeNetBalances(snap.Group.Members, snap.Expenses, snap.Settlements)
		listings = append(listings, GroupListing{
			Group:         snap.Group,
			MemberDetails: members,
			UserBalance:   net[requester],
		})
	}

	slog.Info("ListGroups successful", "count", len(listings))
	return listings, nil
}

// AddMember adds a user to the group by email. Any member may invite.
func (s *GroupService) AddMember(ctx context.Context, req AddMemberRequest) (user *models.User, err error) {
	slog.Info("AddMember request received", "group_id", req.GroupID, "user_id", req.Requester)
	ctx, done := s.startOp(ctx, "AddMember", attribute.String("group_id", req.GroupID))
	defer func() { done(err) }()

	if err := requireRequester(req.Requester); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, apperr.Newf(apperr.ErrInvalidRequest, "email is required")
	}
	name, err := checkText("name", req.Name, maxUserNameLen)
	if err != nil {
		return nil, err
	}

	err = s.withGroupLock(ctx, req.GroupID, func(ctx context.Context) error {
		if _, err := s.memberGroup(ctx, req.GroupID, req.Requester); err != nil {
			return err
		}

		user, err = s.store.GetUserByEmail(ctx, email)
		if errors.Is(err, apperr.ErrNotFound) {
			if name == "" {
				name = nameFromEmail(email)
			}
			user = &models.User{ID: uuid.New().String(), Name: name, Email: email, CreatedAt: s.now()}
			err = s.store.CreateUser(ctx, user)
		}
		if err != nil {
			return err
		}

		return s.store.AddGroupMember(ctx, req.GroupID, user.ID)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.New(events.MemberAdded, req.GroupID, req.Requester, s.now(), map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
		"name":    user.Name,
	}))

	slog.Info("AddMember successful", "group_id", req.GroupID, "member_id", user.ID)
	return user, nil
}

// RemoveMember drops a member from the group. Only the owner may remove
// members, the owner cannot be removed, and a member who appears on any
// expense or settlement stays so the ledger keeps balancing.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, userID, requester string) (err error) {
	slog.Info("RemoveMember request received", "group_id", groupID, "member_id", userID, "user_id", requester)
	ctx, done := s.startOp(ctx, "RemoveMember", attribute.String("group_id", groupID))
	defer func() { done(err) }()

	if err := requireRequester(requester); err != nil {
		return err
	}

	err = s.withGroupLock(ctx, groupID, func(ctx context.Context) error {
		group, err := s.memberGroup(ctx, groupID, requester)
		if err != nil {
			return err
		}
		if !group.IsOwner(requester) {
			return apperr.Newf(apperr.ErrForbidden, "only the group owner can remove members")
		}
		if group.IsOwner(userID) {
			return apperr.Newf(apperr.ErrMemberInUse, "the group owner cannot be removed")
		}
		if !group.HasMember(userID) {
			return apperr.Newf(apperr.ErrNotFound, "user %s is not a member of group %s", userID, groupID)
		}

		referenced, err := s.store.IsMemberReferenced(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if referenced {
			return apperr.Newf(apperr.ErrMemberInUse, "user %s appears on the group's expenses or settlements", userID)
		}
		return s.store.RemoveGroupMember(ctx, groupID, userID)
	})
	if err != nil {
		return err
	}

	slog.Info("RemoveMember successful", "group_id", groupID, "member_id", userID)
	return nil
}

func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
