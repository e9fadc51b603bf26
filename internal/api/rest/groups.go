package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/equalsplit/internal/middleware"
	"github.com/mmynk/equalsplit/internal/service"
)

type createGroupBody struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type addMemberBody struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=100"`
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var body createGroupBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	group, err := h.groups.CreateGroup(r.Context(), service.CreateGroupRequest{
		Name:        body.Name,
		Description: body.Description,
		Requester:   requester(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.ListGroups(r.Context(), requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	var body addMemberBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.groups.AddMember(r.Context(), service.AddMemberRequest{
		GroupID:   chi.URLParam(r, "groupID"),
		Email:     body.Email,
		Name:      body.Name,
		Requester: requester(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	err := h.groups.RemoveMember(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "userID"), requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// registerMe records the token's identity in the user directory.
func (h *Handler) registerMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.groups.RegisterUser(ctx, service.RegisterUserRequest{
		ID:    middleware.GetUserID(ctx),
		Name:  middleware.GetName(ctx),
		Email: middleware.GetEmail(ctx),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.groups.SearchUsers(r.Context(), r.URL.Query().Get("email"), requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
