package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/callclient"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/callclient/transport"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	callHandler "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/handler/http/call"
	wsHandler "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/handler/ws"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/middleware"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/repository/memory"
	callService "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/service/call"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/jwt"
)

const testSecret = "cli-test-secret-0123456789abcdefghij"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestService(t *testing.T) string {
	t.Helper()
	broker := memory.NewBroker(16)
	svc := callService.NewService(memory.NewCallStore(), memory.NewUserStore(), broker)
	hub := wsHandler.NewCallEventsHub(svc, broker)

	router := gin.New()
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwt.NewJWTManager(testSecret, time.Hour), nil))
	v1.GET("/calls/ws/events", hub.ServeWS)
	callHandler.NewHandler(svc).RegisterRoutes(v1)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return server.URL
}

func tokenFor(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := jwt.NewJWTManager(testSecret, time.Hour).GenerateAccessToken(userID, "u-"+userID.String()[:4])
	require.NoError(t, err)
	return token
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "callctl", cmd.Use)

	for _, name := range []string{"dial", "answer", "status", "history", "token"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	assert.NotNil(t, cmd.PersistentFlags().Lookup("server"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("token"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "status", "--format", "xml")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMissingToken(t *testing.T) {
	_, err := execute(t, "status", "--token", "", "--server", "http://127.0.0.1:1")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", assert.AnError)))
}

func TestToken_RoundTrip(t *testing.T) {
	userID := uuid.New()

	out, err := execute(t, "token", "--user", userID.String(), "--username", "alice", "--secret", testSecret, "--format", "json")
	require.NoError(t, err)

	var result struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	claims, err := jwt.NewJWTManager(testSecret, time.Hour).ValidateToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestToken_YAML(t *testing.T) {
	userID := uuid.New()

	out, err := execute(t, "token", "--user", userID.String(), "--secret", testSecret, "--ttl", "30m", "--format", "yaml")
	require.NoError(t, err)

	var result struct {
		Token     string `yaml:"token"`
		UserID    string `yaml:"user_id"`
		ExpiresIn string `yaml:"expires_in"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &result))
	assert.Equal(t, userID.String(), result.UserID)
	assert.Equal(t, "30m0s", result.ExpiresIn)

	claims, err := jwt.NewJWTManager(testSecret, time.Hour).ValidateToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
}

func TestToken_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad user id", []string{"token", "--user", "nope", "--secret", testSecret}},
		{"no secret", []string{"token", "--user", uuid.NewString(), "--secret", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestDialOptions_Request(t *testing.T) {
	callee, room, conversation := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name    string
		opts    DialOptions
		wantErr bool
		check   func(t *testing.T, req *callclient.CallRequest)
	}{
		{
			name: "audio by default",
			opts: DialOptions{To: []string{callee.String()}, Conversation: conversation.String()},
			check: func(t *testing.T, req *callclient.CallRequest) {
				assert.Equal(t, domain.CallTypeAudio, req.Type)
				assert.Equal(t, []uuid.UUID{callee}, req.ParticipantIDs)
				assert.Nil(t, req.RoomID)
				require.NotNil(t, req.ConversationID)
				assert.Equal(t, conversation, *req.ConversationID)
			},
		},
		{
			name: "video in a room",
			opts: DialOptions{To: []string{callee.String()}, Video: true, Room: room.String()},
			check: func(t *testing.T, req *callclient.CallRequest) {
				assert.Equal(t, domain.CallTypeVideo, req.Type)
				require.NotNil(t, req.RoomID)
				assert.Equal(t, room, *req.RoomID)
			},
		},
		{name: "bad invitee", opts: DialOptions{To: []string{"x"}, Room: room.String()}, wantErr: true},
		{name: "no invitee", opts: DialOptions{Room: room.String()}, wantErr: true},
		{name: "bad conversation", opts: DialOptions{To: []string{callee.String()}, Conversation: "x"}, wantErr: true},
		{name: "no room or conversation", opts: DialOptions{To: []string{callee.String()}}, wantErr: true},
		{
			name:    "room and conversation",
			opts:    DialOptions{To: []string{callee.String()}, Room: room.String(), Conversation: conversation.String()},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.opts.request()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ExitCommandError, GetExitCode(err))
				return
			}
			require.NoError(t, err)
			tt.check(t, req)
		})
	}
}

func TestStatusAndHistory(t *testing.T) {
	server := newTestService(t)
	caller, callee := uuid.New(), uuid.New()
	ctx := context.Background()

	room := uuid.New()

	callerAPI := transport.NewHTTPBackend(server, tokenFor(t, caller))
	callID, err := callerAPI.InitiateCall(ctx, &callclient.CallRequest{
		Type:           domain.CallTypeVideo,
		RoomID:         &room,
		ParticipantIDs: []uuid.UUID{callee},
	})
	require.NoError(t, err)

	out, err := execute(t, "status", "--server", server, "--token", tokenFor(t, callee))
	require.NoError(t, err)
	assert.Contains(t, out, "incoming: video call "+callID.String())

	out, err = execute(t, "history", "--server", server, "--token", tokenFor(t, caller))
	require.NoError(t, err)
	assert.Contains(t, out, "no calls")

	require.NoError(t, callerAPI.LeaveCall(ctx, callID))

	out, err = execute(t, "history", "--server", server, "--token", tokenFor(t, caller))
	require.NoError(t, err)
	assert.Contains(t, out, "CALL ID")
	assert.Contains(t, out, callID.String())

	out, err = execute(t, "history", "--server", server, "--token", tokenFor(t, caller), "--format", "json", "--limit", "5")
	require.NoError(t, err)
	var result struct {
		Calls []*domain.CallRecord `json:"calls"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Calls, 1)
	assert.Equal(t, callID, result.Calls[0].Call.CallID)
}

func TestHistory_Unreachable(t *testing.T) {
	_, err := execute(t, "history", "--server", "http://127.0.0.1:1", "--token", tokenFor(t, uuid.New()))

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestDialAndAnswer(t *testing.T) {
	server := newTestService(t)
	caller, callee := uuid.New(), uuid.New()

	type result struct {
		out string
		err error
	}
	answered := make(chan result, 1)
	go func() {
		out, err := execute(t, "answer", "--server", server, "--token", tokenFor(t, callee),
			"--wait", "5s", "--duration", "500ms")
		answered <- result{out, err}
	}()

	out, err := execute(t, "dial", "--server", server, "--token", tokenFor(t, caller),
		"--to", callee.String(), "--room", uuid.NewString(), "--ring-timeout", "5s", "--duration", "200ms")
	require.NoError(t, err, out)
	assert.Contains(t, out, "state=calling")
	assert.Contains(t, out, "state=connected")
	assert.Contains(t, out, "state=ended")

	select {
	case res := <-answered:
		require.NoError(t, res.err, res.out)
		assert.Contains(t, res.out, "incoming")
		assert.Contains(t, res.out, "state=connected")
	case <-time.After(10 * time.Second):
		t.Fatal("answer never returned")
	}
}

func TestDial_RequiresRoomOrConversation(t *testing.T) {
	_, err := execute(t, "dial", "--server", "http://127.0.0.1:1", "--token", tokenFor(t, uuid.New()),
		"--to", uuid.NewString())

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--room or --conversation")
}

func TestAnswer_Decline(t *testing.T) {
	server := newTestService(t)
	caller, callee := uuid.New(), uuid.New()

	done := make(chan error, 1)
	go func() {
		_, err := execute(t, "answer", "--server", server, "--token", tokenFor(t, callee), "--wait", "5s", "--decline")
		done <- err
	}()

	conversation := uuid.New()
	callerAPI := transport.NewHTTPBackend(server, tokenFor(t, caller))
	callID, err := callerAPI.InitiateCall(context.Background(), &callclient.CallRequest{
		Type:           domain.CallTypeAudio,
		ConversationID: &conversation,
		ParticipantIDs: []uuid.UUID{callee},
	})
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("answer --decline never returned")
	}

	incoming, err := transport.NewHTTPBackend(server, tokenFor(t, callee)).GetIncomingCall(context.Background())
	require.NoError(t, err)
	assert.Nil(t, incoming)
	require.NoError(t, callerAPI.LeaveCall(context.Background(), callID))
}

func TestAnswer_NoCall(t *testing.T) {
	server := newTestService(t)

	_, err := execute(t, "answer", "--server", server, "--token", tokenFor(t, uuid.New()), "--wait", "100ms")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
