package moderation_test

import (
	"context"
	"dm-lab/domain/messaging"
	"dm-lab/mocks"
	"dm-lab/moderation"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestGate_Moderate(t *testing.T) {
	tests := []struct {
		name     string
		failOpen bool
		stub     func(ctx context.Context, text string) (moderation.Classification, error)
		expected messaging.ModerationResult
	}{
		{
			name:     "clean text is approved",
			failOpen: true,
			stub: func(context.Context, string) (moderation.Classification, error) {
				return moderation.Classification{}, nil
			},
			expected: messaging.ModerationResult{Approved: true},
		},
		{
			name:     "flagged text is rejected with the classifier reason",
			failOpen: true,
			stub: func(context.Context, string) (moderation.Classification, error) {
				return moderation.Classification{Flagged: true, Reason: "X", Categories: []string{"insult"}}, nil
			},
			expected: messaging.ModerationResult{Reason: "X", Categories: []string{"insult"}},
		},
		{
			name:     "flagged text without reason gets one from its categories",
			failOpen: false,
			stub: func(context.Context, string) (moderation.Classification, error) {
				return moderation.Classification{Flagged: true, Categories: []string{"insult", "spam"}}, nil
			},
			expected: messaging.ModerationResult{Reason: "message flagged as insult, spam", Categories: []string{"insult", "spam"}},
		},
		{
			name:     "classifier error fails open",
			failOpen: true,
			stub: func(context.Context, string) (moderation.Classification, error) {
				return moderation.Classification{}, fmt.Errorf("connection refused")
			},
			expected: messaging.ModerationResult{Approved: true, Degraded: true},
		},
		{
			name:     "classifier error fails closed",
			failOpen: false,
			stub: func(context.Context, string) (moderation.Classification, error) {
				return moderation.Classification{}, fmt.Errorf("connection refused")
			},
			expected: messaging.ModerationResult{Reason: "moderation is unavailable", Degraded: true},
		},
		{
			name:     "slow classifier times out",
			failOpen: true,
			stub: func(ctx context.Context, _ string) (moderation.Classification, error) {
				<-ctx.Done()
				time.Sleep(20 * time.Millisecond)
				return moderation.Classification{Flagged: true}, nil
			},
			expected: messaging.ModerationResult{Approved: true, Degraded: true},
		},
		{
			name:     "panicking classifier is contained",
			failOpen: false,
			stub: func(context.Context, string) (moderation.Classification, error) {
				panic("boom")
			},
			expected: messaging.ModerationResult{Reason: "moderation is unavailable", Degraded: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			classifier := mocks.NewMockClassifier(ctrl)
			classifier.EXPECT().Classify(gomock.Any(), "some text").DoAndReturn(tt.stub).Times(1)

			gate := moderation.NewGate(classifier, 50*time.Millisecond, logs.GetLoggerFromLevel(slog.LevelDebug))
			req.Equal(tt.expected, gate.Moderate(context.Background(), "some text", tt.failOpen))
		})
	}
}

func TestGate_WithBlocklist(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	blocklist, err := moderation.DefaultBlocklist()
	req.NoError(err)
	classifier, err := moderation.NewBlocklistClassifier(blocklist, log)
	req.NoError(err)
	gate := moderation.NewGate(classifier, time.Second, log)

	result := gate.Moderate(context.Background(), "hello there", true)
	req.True(result.Approved)

	result = gate.Moderate(context.Background(), "you moron", true)
	req.False(result.Approved)
	req.False(result.Degraded)
	req.Equal([]string{"insult"}, result.Categories)
}
