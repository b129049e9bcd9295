package moderation

import (
	"context"
	"dm-lab/domain/messaging"
	"dm-lab/errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
)

const DefaultTimeout = 2 * time.Second

// Gate puts a Classifier in the request path. It never fails: when the classifier errors or runs
// out of time the caller's failOpen policy decides and the result is marked Degraded.
type Gate struct {
	classifier Classifier
	timeout    time.Duration
	log        *slog.Logger
}

func NewGate(classifier Classifier, timeout time.Duration, log *slog.Logger) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{classifier: classifier, timeout: timeout, log: log}
}

type classifyOutcome struct {
	classification Classification
	err            error
}

func (g *Gate) Moderate(ctx context.Context, text string, failOpen bool) messaging.ModerationResult {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// Buffered so a classifier finishing after the deadline does not leak the goroutine
	done := make(chan classifyOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- classifyOutcome{err: fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)}
			}
		}()
		classification, err := g.classifier.Classify(ctx, text)
		done <- classifyOutcome{classification: classification, err: err}
	}()

	select {
	case <-ctx.Done():
		return g.degraded(text, failOpen, ctx.Err())
	case outcome := <-done:
		if outcome.err != nil {
			return g.degraded(text, failOpen, outcome.err)
		}
		return g.verdict(text, outcome.classification)
	}
}

func (g *Gate) verdict(text string, c Classification) messaging.ModerationResult {
	if !c.Flagged {
		return messaging.ModerationResult{Approved: true}
	}
	reason := c.Reason
	if reason == "" {
		reason = "message violates the content policy"
		if len(c.Categories) > 0 {
			reason = fmt.Sprintf("message flagged as %s", strings.Join(c.Categories, ", "))
		}
	}
	g.log.Info("Content rejected", "categories", c.Categories, "lang", language(text))
	return messaging.ModerationResult{Approved: false, Reason: reason, Categories: c.Categories}
}

func (g *Gate) degraded(text string, failOpen bool, err error) messaging.ModerationResult {
	g.log.Warn("Moderation degraded, applying default policy",
		"fail_open", failOpen, "error", err, "lang", language(text))
	result := messaging.ModerationResult{Approved: failOpen, Degraded: true}
	if !failOpen {
		result.Reason = "moderation is unavailable"
	}
	return result
}

func language(text string) string {
	return whatlanggo.Detect(text).Lang.Iso6391()
}
