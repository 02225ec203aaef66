package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"teamchat/internal/ai"
	"teamchat/internal/model"
	"teamchat/internal/repository"
)

// Ingester is the ingestion side of the backend: it accepts raw text and
// issues stable opaque document ids.
type Ingester interface {
	Ingest(ctx context.Context, fileName, content string) ([]ai.IngestedDoc, error)
	ListIngested(ctx context.Context) ([]ai.IngestedDoc, error)
	DeleteIngested(ctx context.Context, docID string) error
}

// DocumentService wraps the ingestion backend with team tagging and
// per-identity visibility.
type DocumentService struct {
	ingester    Ingester
	access      *AccessService
	docTeamRepo *repository.DocumentTeamRepository
	publisher   AuditPublisher
}

func NewDocumentService(ingester Ingester, access *AccessService, docTeamRepo *repository.DocumentTeamRepository, publisher AuditPublisher) *DocumentService {
	return &DocumentService{
		ingester:    ingester,
		access:      access,
		docTeamRepo: docTeamRepo,
		publisher:   publisher,
	}
}

type DocumentInfo struct {
	DocID    string   `json:"doc_id"`
	FileName string   `json:"file_name"`
	Teams    []string `json:"teams"`
}

// Upload ingests one named text payload. Re-uploading a file name replaces
// the previously ingested documents of that name. When the uploader is an
// admin and teams are given, the new documents are tagged with them.
func (s *DocumentService) Upload(ctx context.Context, actor Identity, fileName, content string, teams []string) ([]DocumentInfo, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" || strings.TrimSpace(content) == "" {
		return nil, ErrInvalidInput
	}

	existing, err := s.ingester.ListIngested(ctx)
	if err != nil {
		return nil, err
	}
	for _, doc := range existing {
		if doc.FileName != fileName {
			continue
		}
		if err := s.ingester.DeleteIngested(ctx, doc.DocID); err != nil {
			return nil, err
		}
		if err := s.docTeamRepo.DeleteForDoc(doc.DocID); err != nil {
			return nil, err
		}
	}

	ingested, err := s.ingester.Ingest(ctx, fileName, content)
	if err != nil {
		return nil, err
	}

	teams = normalizeTeams(teams)
	infos := make([]DocumentInfo, 0, len(ingested))
	for _, doc := range ingested {
		docTeams := []string{}
		if actor.IsAdmin() && len(teams) > 0 {
			if err := s.docTeamRepo.ReplaceForDoc(doc.DocID, teams); err != nil {
				return nil, err
			}
			docTeams = teams
		}
		infos = append(infos, DocumentInfo{DocID: doc.DocID, FileName: doc.FileName, Teams: docTeams})
	}
	s.audit(ctx, actor, "document.upload", fileName)
	return infos, nil
}

// List returns the documents the identity may see, with their team tags.
// Untagged documents appear only for admins.
func (s *DocumentService) List(ctx context.Context, actor Identity) ([]DocumentInfo, error) {
	ingested, err := s.ingester.ListIngested(ctx)
	if err != nil {
		return nil, err
	}
	docIDs := make([]string, 0, len(ingested))
	for _, doc := range ingested {
		docIDs = append(docIDs, doc.DocID)
	}
	visible, err := s.access.VisibleDocIDs(actor, docIDs)
	if err != nil {
		return nil, err
	}

	infos := make([]DocumentInfo, 0, len(ingested))
	for _, doc := range ingested {
		if !visible[doc.DocID] {
			continue
		}
		teams, err := s.docTeamRepo.ListByDocID(doc.DocID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, DocumentInfo{DocID: doc.DocID, FileName: doc.FileName, Teams: teams})
	}
	return infos, nil
}

// Delete removes the document from the ingestion backend and drops its team
// associations.
func (s *DocumentService) Delete(ctx context.Context, actor Identity, docID string) error {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return ErrInvalidInput
	}
	if err := s.ingester.DeleteIngested(ctx, docID); err != nil {
		return err
	}
	if err := s.docTeamRepo.DeleteForDoc(docID); err != nil {
		return err
	}
	s.audit(ctx, actor, "document.delete", docID)
	return nil
}

// DeleteAll wipes the ingestion backend and every team association. It
// returns the number of documents removed.
func (s *DocumentService) DeleteAll(ctx context.Context, actor Identity) (int, error) {
	ingested, err := s.ingester.ListIngested(ctx)
	if err != nil {
		return 0, err
	}
	for _, doc := range ingested {
		if err := s.ingester.DeleteIngested(ctx, doc.DocID); err != nil {
			return 0, err
		}
		if err := s.docTeamRepo.DeleteForDoc(doc.DocID); err != nil {
			return 0, err
		}
	}
	s.audit(ctx, actor, "document.delete_all", fmt.Sprintf("%d documents", len(ingested)))
	return len(ingested), nil
}

func (s *DocumentService) audit(ctx context.Context, actor Identity, action, entity string) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, model.AuditEvent{
		Actor:  actor.Username,
		Action: action,
		Entity: entity,
		At:     time.Now(),
	})
}
