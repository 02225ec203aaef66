package app

import (
	"teamchat/internal/model"
	"teamchat/internal/repository"
)

// Identity is the authenticated caller of a request. Teams are loaded fresh
// from the store per request so role or membership changes apply without
// re-login.
type Identity struct {
	UserID   uint
	Username string
	Role     string
	Teams    []string
}

func (id Identity) IsAdmin() bool {
	return id.Role == model.RoleAdmin
}

// AccessService computes the set of documents a query may draw context from.
// It owns the document-team association rows and has no side effects on them
// during resolution.
type AccessService struct {
	docTeamRepo *repository.DocumentTeamRepository
}

func NewAccessService(docTeamRepo *repository.DocumentTeamRepository) *AccessService {
	return &AccessService{docTeamRepo: docTeamRepo}
}

// ResolveContext narrows the corpus for one request.
//
// An admin with no explicit selection sees everything. An explicit selection
// is intersected with the caller's permitted set; an empty intersection
// yields a scope matching zero documents, never an unrestricted one. A
// non-admin with no selection gets the union of documents tagged with any of
// their teams; if that union is empty the returned scope is empty and the
// caller must not fall through to generation.
func (s *AccessService) ResolveContext(identity Identity, requested []string) (model.ContextScope, error) {
	if identity.IsAdmin() {
		if len(requested) == 0 {
			return model.ContextScope{All: true}, nil
		}
		// Admins are permitted the full corpus, so the intersection is the
		// request itself.
		return model.ContextScope{DocIDs: requested}, nil
	}

	permitted, err := s.docTeamRepo.DocIDsByTeams(identity.Teams)
	if err != nil {
		return model.ContextScope{}, err
	}
	if len(requested) == 0 {
		return model.ContextScope{DocIDs: permitted}, nil
	}

	allowed := make(map[string]struct{}, len(permitted))
	for _, id := range permitted {
		allowed[id] = struct{}{}
	}
	var granted []string
	for _, id := range requested {
		if _, ok := allowed[id]; ok {
			granted = append(granted, id)
		}
	}
	return model.ContextScope{DocIDs: granted}, nil
}

// VisibleDocIDs reports which of the given documents the identity may see at
// all, used for listings rather than retrieval filtering.
func (s *AccessService) VisibleDocIDs(identity Identity, docIDs []string) (map[string]bool, error) {
	visible := make(map[string]bool, len(docIDs))
	if identity.IsAdmin() {
		for _, id := range docIDs {
			visible[id] = true
		}
		return visible, nil
	}
	permitted, err := s.docTeamRepo.DocIDsByTeams(identity.Teams)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(permitted))
	for _, id := range permitted {
		allowed[id] = struct{}{}
	}
	for _, id := range docIDs {
		_, ok := allowed[id]
		visible[id] = ok
	}
	return visible, nil
}
