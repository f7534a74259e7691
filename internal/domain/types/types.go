// Package types contains common types used across the application
package types

// TallyEntry represents one ranked nominee in a subcategory tally.
type TallyEntry struct {
	Rank          int     `json:"rank"`
	NomineeID     string  `json:"nominee_id"`
	WeightedScore float64 `json:"weighted_score"`
}
