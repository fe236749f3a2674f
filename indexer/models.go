package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one ledger event as stored for off-chain queries.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	Subject    string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// TroveRecord is the latest state of a trove as seen through TroveUpdated.
type TroveRecord struct {
	Owner     string    `gorm:"size:64;primaryKey" json:"owner"`
	Status    string    `gorm:"size:32;index" json:"status"`
	Coll      string    `gorm:"size:80" json:"coll"`
	Debt      string    `gorm:"size:80" json:"debt"`
	Stake     string    `gorm:"size:80" json:"stake"`
	Operation string    `gorm:"size:32" json:"operation"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{}, &TroveRecord{})
}
