//go:generate go run go.uber.org/mock/mockgen -source=classifier.go -destination=../mocks/mock_classifier.go -package=mocks
package moderation

import (
	"context"
	"log/slog"
	"sort"

	"github.com/samber/lo"
)

// Classification is the raw verdict of a classifier.
type Classification struct {
	Flagged    bool
	Categories []string
	Reason     string
}

// Classifier scores text. Implementations may be remote and slow, the Gate bounds them with a timeout.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

var _ Classifier = (*BlocklistClassifier)(nil)

// BlocklistClassifier flags text containing a blocklisted word of any category.
type BlocklistClassifier struct {
	moderators map[string]Moderator
	log        *slog.Logger
}

func NewBlocklistClassifier(blocklist Blocklist, log *slog.Logger) (*BlocklistClassifier, error) {
	moderators := make(map[string]Moderator, len(blocklist))
	for category, words := range blocklist {
		moderator, err := NewModerator(words, '*', log)
		if err != nil {
			return nil, err
		}
		moderators[category] = moderator
	}
	log.Info("Blocklist classifier ready", "categories", blocklist.Categories(),
		"words", lo.Sum(lo.MapToSlice(blocklist, func(_ string, words []string) int { return len(words) })))
	return &BlocklistClassifier{moderators: moderators, log: log}, nil
}

func (c *BlocklistClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	var categories []string
	for category, moderator := range c.moderators {
		if err := ctx.Err(); err != nil {
			return Classification{}, err
		}
		if words := moderator.Find(text); len(words) > 0 {
			categories = append(categories, category)
			c.log.Debug("Blocklisted words found", "category", category, "count", len(words))
		}
	}
	if len(categories) == 0 {
		return Classification{}, nil
	}
	sort.Strings(categories)
	return Classification{
		Flagged:    true,
		Categories: categories,
		Reason:     "message contains blocklisted language",
	}, nil
}
