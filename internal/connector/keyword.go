package connector

import (
	"context"
	"strings"

	"fechamento/internal/model"
)

// KeywordRule maps a description substring onto a category.
type KeywordRule struct {
	Keyword    string
	CategoryID string
	Category   string
	Confidence float64
}

// KeywordClassifier assigns categories by substring matching against
// the transaction description. Unmatched transactions get a low-confidence
// fallback so the classify stage routes them to review.
type KeywordClassifier struct {
	rules []KeywordRule
}

// NewKeywordClassifier creates a classifier from an ordered rule list;
// the first matching rule wins.
func NewKeywordClassifier(rules []KeywordRule) *KeywordClassifier {
	return &KeywordClassifier{rules: rules}
}

// Classify scores one transaction.
func (c *KeywordClassifier) Classify(_ context.Context, txn model.Transaction) (model.CategoryAssignment, error) {
	desc := strings.ToLower(txn.Description)
	for _, rule := range c.rules {
		if strings.Contains(desc, strings.ToLower(rule.Keyword)) {
			confidence := rule.Confidence
			if confidence <= 0 {
				confidence = 0.9
			}
			return model.CategoryAssignment{
				ID:         rule.CategoryID,
				Name:       rule.Category,
				Confidence: confidence,
			}, nil
		}
	}
	return model.CategoryAssignment{
		ID:         "uncategorized",
		Name:       "Sem categoria",
		Confidence: 0.0,
	}, nil
}
