package httpapi

import (
	stderrors "errors"
	"net/http"

	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type createGroupRequest struct {
	Name    string   `json:"name" validate:"required,max=64"`
	Members []string `json:"members" validate:"dive,required"`
}

type createGroupResponse struct {
	GroupID string `json:"groupId"`
}

type groupResponse struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (s *Server) groupChats(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	groups, err := s.deps.Groups.GroupsForUser(r.Context(), claims.UserID)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(groups, func(g domain.Group, _ int) groupResponse {
		return groupResponse{ID: g.ID, Name: g.Name, Members: g.Members}
	}))
}

// createGroupChat creates a group from member usernames. Unknown names are
// ignored and the creator always joins.
func (s *Server) createGroupChat(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	claims := claimsFrom(r.Context())

	memberIDs, err := s.deps.Users.UserIDsByName(r.Context(), req.Members)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	memberIDs = lo.Uniq(append([]string{claims.UserID}, memberIDs...))

	group, err := s.deps.Groups.CreateGroup(r.Context(), req.Name, memberIDs)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createGroupResponse{GroupID: group.ID})
}

// messages returns the history of a group the caller belongs to, or of the
// direct conversation between the caller and another user.
func (s *Server) messages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFrom(r.Context())
	ctx := r.Context()

	group, err := s.deps.Groups.Group(ctx, id)
	switch {
	case err == nil:
		if !group.HasMember(claims.UserID) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		records, err := s.deps.History.GroupHistory(ctx, id)
		if err != nil {
			writeInternal(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(records))
		return

	case !stderrors.Is(err, domain.ErrNotFound):
		writeInternal(w, r, err)
		return
	}

	if _, err := s.deps.Users.UserByID(ctx, id); err != nil {
		if stderrors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeInternal(w, r, err)
		return
	}

	records, err := s.deps.History.DirectHistory(ctx, claims.UserID, id)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

func nonNil(records []domain.MessageRecord) []domain.MessageRecord {
	if records == nil {
		return []domain.MessageRecord{}
	}
	return records
}
