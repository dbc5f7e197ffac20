package model

import "time"

type ObjectionCategory string

const (
	ObjectionCategoryPrice      ObjectionCategory = "price"
	ObjectionCategoryTiming     ObjectionCategory = "timing"
	ObjectionCategoryTrust      ObjectionCategory = "trust"
	ObjectionCategoryCompetitor ObjectionCategory = "competitor"
	ObjectionCategoryNeed       ObjectionCategory = "need"
	ObjectionCategoryOther      ObjectionCategory = "other"
)

// Objection is a buyer objection raised against a deal.
type Objection struct {
	ID        string            `json:"id"`
	DealID    string            `json:"deal_id"`
	Text      string            `json:"text"`
	Category  ObjectionCategory `json:"category"`
	Resolved  bool              `json:"resolved"`
	CreatedAt time.Time         `json:"created_at"`
}

// KnownObjectionCategory reports whether the category is one the pipeline
// recognizes. Unknown categories fall back to "other" rather than failing.
func KnownObjectionCategory(c ObjectionCategory) bool {
	switch c {
	case ObjectionCategoryPrice, ObjectionCategoryTiming, ObjectionCategoryTrust,
		ObjectionCategoryCompetitor, ObjectionCategoryNeed, ObjectionCategoryOther:
		return true
	}
	return false
}
