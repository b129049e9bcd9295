package server

import (
	"bytes"
	"dm-lab/auth"
	"dm-lab/domain/messaging"
	"dm-lab/moderation"
	"dm-lab/observability"
	"dm-lab/permission"
	"dm-lab/repositories"
	"dm-lab/runtime/workers"
	"dm-lab/services"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	return newTestServerWith(t, Options{CORSOrigins: []string{"*"}, DebugStats: true})
}

func newTestServerWith(t *testing.T, options Options) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })

	messages := repositories.NewMessageRepository(db, log)
	stores := services.Stores{
		Conversations: repositories.NewConversationRepository(db, log, messages),
		Messages:      messages,
		Index:         repositories.NewMessageIndex(writer, log),
		Profiles:      repositories.NewProfileRepository(db),
		Relationships: repositories.NewRelationshipRepository(db),
		Notifications: repositories.NewNotificationRepository(db),
	}
	blocklist, err := moderation.DefaultBlocklist()
	req.NoError(err)
	classifier, err := moderation.NewBlocklistClassifier(blocklist, log)
	req.NoError(err)

	service := services.NewMessagingService(
		stores,
		permission.NewGate(stores.Conversations, stores.Relationships, log),
		moderation.NewGate(classifier, time.Second, log),
		workers.NewNotificationDispatcher(16, log),
		services.Limits{},
		log,
	)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	monitoring := observability.NewMonitoringManager(log, time.Second, nil)
	return testServer{
		router: NewServer(service, tokens, monitoring, options, log).Router(),
		tokens: tokens,
	}
}

// do sends a request as userID, or anonymously when userID is empty, and decodes the JSON answer into out.
func (s testServer) do(t *testing.T, method, path, userID string, body any, out any) int {
	t.Helper()
	req := require.New(t)
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		req.NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.tokens.GenerateToken(userID)
		req.NoError(err)
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.router.ServeHTTP(recorder, request)
	if out != nil && recorder.Body.Len() > 0 {
		req.NoError(json.Unmarshal(recorder.Body.Bytes(), out))
	}
	return recorder.Code
}

func (s testServer) direct(t *testing.T, a, b string) messaging.ConversationView {
	t.Helper()
	var view messaging.ConversationView
	status := s.do(t, http.MethodPost, "/v1/conversations", a, gin.H{"participant_ids": []string{b}}, &view)
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, status)
	return view
}

func TestServer_Healthz(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	var body map[string]string
	req.Equal(http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil, &body))
	req.Equal("ok", body["status"])
}

func TestServer_RequiresToken(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	var body map[string]string
	req.Equal(http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/conversations", "", nil, &body))
	req.NotEmpty(body["error"])
}

func TestServer_CreateConversationIsIdempotent(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	var first, second messaging.ConversationView
	req.Equal(http.StatusCreated, s.do(t, http.MethodPost, "/v1/conversations", "alice",
		gin.H{"participant_ids": []string{"bob"}}, &first))
	req.Equal(http.StatusOK, s.do(t, http.MethodPost, "/v1/conversations", "bob",
		gin.H{"participant_ids": []string{"alice"}}, &second))
	req.Equal(first.ID, second.ID)
	req.Len(second.Participants, 2)
}

func TestServer_MessageLifecycle(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	conversation := s.direct(t, "alice", "bob")
	base := "/v1/conversations/" + conversation.ID.String()

	var sent messaging.Message
	req.Equal(http.StatusCreated, s.do(t, http.MethodPost, base+"/messages", "alice",
		gin.H{"content": "hello bob"}, &sent))
	req.Equal("hello bob", sent.Content)

	var edited messaging.Message
	req.Equal(http.StatusForbidden, s.do(t, http.MethodPatch, "/v1/messages/"+sent.ID.String(), "bob",
		gin.H{"content": "hijacked"}, nil))
	req.Equal(http.StatusOK, s.do(t, http.MethodPatch, "/v1/messages/"+sent.ID.String(), "alice",
		gin.H{"content": "hello again"}, &edited))
	req.NotNil(edited.EditedAt)

	var found map[string][]messaging.Message
	req.Equal(http.StatusOK, s.do(t, http.MethodGet, base+"/search?q=again", "bob", nil, &found))
	req.Len(found["messages"], 1)

	req.Equal(http.StatusOK, s.do(t, http.MethodDelete, "/v1/messages/"+sent.ID.String(), "alice", nil, nil))

	var page messaging.MessagePage
	req.Equal(http.StatusOK, s.do(t, http.MethodGet, base+"/messages?limit=10", "bob", nil, &page))
	req.Len(page.Messages, 1)
	req.Equal(messaging.Tombstone, page.Messages[0].Content)
	req.Empty(page.NextCursor)

	req.Equal(http.StatusNoContent, s.do(t, http.MethodPost, base+"/read", "bob", nil, nil))
}

func TestServer_RejectedContent(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	conversation := s.direct(t, "alice", "bob")

	var body struct {
		Error      string   `json:"error"`
		Reason     string   `json:"reason"`
		Categories []string `json:"categories"`
	}
	status := s.do(t, http.MethodPost, "/v1/conversations/"+conversation.ID.String()+"/messages", "alice",
		gin.H{"content": "you are an idiot"}, &body)
	req.Equal(http.StatusUnprocessableEntity, status)
	req.Contains(body.Categories, "insult")
	req.NotEmpty(body.Reason)
}

func TestServer_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	conversation := s.direct(t, "alice", "bob")
	base := "/v1/conversations/" + conversation.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"malformed id", http.MethodGet, "/v1/conversations/not-a-uuid", "alice", nil, http.StatusBadRequest},
		{"non participant sees nothing", http.MethodGet, base, "mallory", nil, http.StatusNotFound},
		{"non participant cannot send", http.MethodPost, base + "/messages", "mallory", gin.H{"content": "hi"}, http.StatusForbidden},
		{"empty content", http.MethodPost, base + "/messages", "alice", gin.H{"content": "   "}, http.StatusBadRequest},
		{"bad limit", http.MethodGet, base + "/messages?limit=abc", "alice", nil, http.StatusBadRequest},
		{"bad cursor", http.MethodGet, base + "/messages?before=nope", "alice", nil, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/v1/conversations", "alice", "not an object", http.StatusBadRequest},
		{"self block", http.MethodPut, "/v1/blocks/alice", "alice", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, s.do(t, tt.method, tt.path, tt.user, tt.body, nil))
		})
	}
}

func TestServer_BlockAndCanMessage(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	var decision permission.Decision
	req.Equal(http.StatusOK, s.do(t, http.MethodGet, "/v1/users/bob/can-message", "alice", nil, &decision))
	req.True(decision.CanMessage)

	req.Equal(http.StatusNoContent, s.do(t, http.MethodPut, "/v1/blocks/alice", "bob", nil, nil))
	req.Equal(http.StatusOK, s.do(t, http.MethodGet, "/v1/users/bob/can-message", "alice", nil, &decision))
	req.False(decision.CanMessage)
	req.Equal(http.StatusForbidden, s.do(t, http.MethodPost, "/v1/conversations", "alice",
		gin.H{"participant_ids": []string{"bob"}}, nil))

	req.Equal(http.StatusNoContent, s.do(t, http.MethodDelete, "/v1/blocks/alice", "bob", nil, nil))
	req.Equal(http.StatusOK, s.do(t, http.MethodGet, "/v1/users/bob/can-message", "alice", nil, &decision))
	req.True(decision.CanMessage)
}

func TestServer_Profile(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	var profile messaging.Profile
	req.Equal(http.StatusOK, s.do(t, http.MethodPut, "/v1/me/profile", "alice", gin.H{
		"display_name":          "  Alice  ",
		"allow_friend_requests": true,
		"profile_visibility":    "private",
	}, &profile))
	req.Equal("Alice", profile.DisplayName)
	req.Equal(messaging.VisibilityPrivate, profile.Visibility)

	req.Equal(http.StatusBadRequest, s.do(t, http.MethodPut, "/v1/me/profile", "alice", gin.H{
		"display_name":       "Alice",
		"profile_visibility": "everyone",
	}, nil))
}

func TestServer_DebugStats(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	req.Equal(http.StatusUnauthorized, s.do(t, http.MethodGet, "/debug/stats", "", nil, nil))
	req.Equal(http.StatusOK, s.do(t, http.MethodGet, "/debug/stats", "alice", nil, &observability.MonitoringStats{}))
}

func TestServer_DebugStatsDisabled(t *testing.T) {
	req := require.New(t)
	s := newTestServerWith(t, Options{})
	req.Equal(http.StatusNotFound, s.do(t, http.MethodGet, "/debug/stats", "alice", nil, nil))
}
