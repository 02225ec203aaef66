package repository

import (
	"fmt"

	"gorm.io/gorm"

	"teamchat/internal/model"
)

type DocumentTeamRepository struct {
	db *gorm.DB
}

func NewDocumentTeamRepository(db *gorm.DB) *DocumentTeamRepository {
	return &DocumentTeamRepository{db: db}
}

func (r *DocumentTeamRepository) ListByDocID(docID string) ([]string, error) {
	var teams []string
	if err := r.db.Model(&model.DocumentTeam{}).Where("doc_id = ?", docID).
		Order("team ASC").Pluck("team", &teams).Error; err != nil {
		return nil, fmt.Errorf("list document teams failed: %w", err)
	}
	return teams, nil
}

// DocIDsByTeams returns the distinct IDs of documents tagged with any of the
// given teams. An empty team list yields an empty result.
func (r *DocumentTeamRepository) DocIDsByTeams(teams []string) ([]string, error) {
	if len(teams) == 0 {
		return nil, nil
	}
	var docIDs []string
	if err := r.db.Model(&model.DocumentTeam{}).Where("team IN ?", teams).
		Distinct("doc_id").Pluck("doc_id", &docIDs).Error; err != nil {
		return nil, fmt.Errorf("query documents by teams failed: %w", err)
	}
	return docIDs, nil
}

// ReplaceForDoc overwrites the document's full team set. Passing no teams
// removes every association, leaving the document admin-only.
func (r *DocumentTeamRepository) ReplaceForDoc(docID string, teams []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doc_id = ?", docID).Delete(&model.DocumentTeam{}).Error; err != nil {
			return fmt.Errorf("clear document teams failed: %w", err)
		}
		for _, team := range teams {
			if err := tx.Create(&model.DocumentTeam{DocID: docID, Team: team}).Error; err != nil {
				return fmt.Errorf("create document team failed: %w", err)
			}
		}
		return nil
	})
}

func (r *DocumentTeamRepository) DeleteForDoc(docID string) error {
	if err := r.db.Where("doc_id = ?", docID).Delete(&model.DocumentTeam{}).Error; err != nil {
		return fmt.Errorf("delete document teams failed: %w", err)
	}
	return nil
}

func (r *DocumentTeamRepository) DistinctTeams() ([]string, error) {
	var teams []string
	if err := r.db.Model(&model.DocumentTeam{}).Distinct("team").
		Order("team ASC").Pluck("team", &teams).Error; err != nil {
		return nil, fmt.Errorf("list teams failed: %w", err)
	}
	return teams, nil
}
