package sctid

import "time"

// Record sources.
const (
	SourceGenerated  = "generated"
	SourceRegistered = "registered"
)

// Record is the persisted lifecycle record of one identifier.
type Record struct {
	ID         string    `json:"sctid"`
	ItemID     uint64    `json:"sequence"`
	Namespace  string    `json:"namespace"`
	Category   Category  `json:"category"`
	CheckDigit int       `json:"checkDigit"`
	Status     Status    `json:"status"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// NewRecord parses id and returns a record in the given status.
func NewRecord(id string, status Status, source string, now time.Time) (Record, error) {
	c, err := Parse(id)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:         id,
		ItemID:     c.ItemID,
		Namespace:  c.Namespace,
		Category:   c.Category,
		CheckDigit: c.CheckDigit,
		Status:     status,
		Source:     source,
		CreatedAt:  now,
		ModifiedAt: now,
	}, nil
}
