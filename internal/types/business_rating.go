package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BusinessRating carries the running aggregates for one business. Two kinds of
// denominator live here and must not be mixed up:
//
//   - ReviewCount is the number of scored reviews and is the n behind
//     ReviewOverall.
//   - QualityCount/ReliabilityCount/PriceCount count only the reviews that
//     actually mentioned that category (scorer returned > 0), and are the n
//     behind the per-category means.
//
// Overall is always produced by the blend in the ratings package; nothing else
// writes it.
type BusinessRating struct {
	BusinessID       uuid.UUID      `gorm:"type:uuid;primaryKey;column:business_id" json:"business_id"`
	Overall          float64        `gorm:"not null;default:5;column:overall" json:"overall"`
	Quality          float64        `gorm:"not null;default:0;column:quality" json:"quality"`
	Reliability      float64        `gorm:"not null;default:0;column:reliability" json:"reliability"`
	Price            float64        `gorm:"not null;default:0;column:price" json:"price"`
	ReviewOverall    float64        `gorm:"not null;default:0;column:review_overall" json:"review_overall"`
	ChargedScore     float64        `gorm:"not null;default:5;column:charged_score" json:"charged_score"`
	ReviewCount      int            `gorm:"not null;default:0;column:review_count" json:"review_count"`
	QualityCount     int            `gorm:"not null;default:0;column:quality_count" json:"quality_count"`
	ReliabilityCount int            `gorm:"not null;default:0;column:reliability_count" json:"reliability_count"`
	PriceCount       int            `gorm:"not null;default:0;column:price_count" json:"price_count"`
	ChargedCount     int            `gorm:"not null;default:0;column:charged_count" json:"charged_count"`
	QualifyingCount  int            `gorm:"not null;default:0;column:qualifying_count" json:"qualifying_count"`
	Insights         datatypes.JSON `gorm:"column:insights" json:"insights,omitempty"`
	ReviewSummary    string         `gorm:"column:review_summary" json:"review_summary"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (BusinessRating) TableName() string {
	return "business_rating"
}
