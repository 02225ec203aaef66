package model

// DocumentTeam associates one ingested document with one team. Document IDs
// are opaque identifiers issued by the ingestion backend; a document with no
// rows here is visible only to admins.
type DocumentTeam struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	DocID string `gorm:"size:128;not null;index;uniqueIndex:idx_doc_team" json:"doc_id"`
	Team  string `gorm:"size:64;not null;index;uniqueIndex:idx_doc_team" json:"team"`
}

// ContextScope is the set of document IDs one query may retrieve from.
// All means no restriction; otherwise only the listed IDs match. An empty
// non-All scope matches zero documents and must never be treated as "no
// filter".
type ContextScope struct {
	All    bool     `json:"all"`
	DocIDs []string `json:"doc_ids"`
}

func (s ContextScope) Empty() bool {
	return !s.All && len(s.DocIDs) == 0
}
