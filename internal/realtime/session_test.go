// ABOUTME: Tests for the realtime session state machine
// ABOUTME: Drives sessions through a fake outbox against an in-memory store

package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/embedding"
	"github.com/2389/coven-chat/internal/room"
	"github.com/2389/coven-chat/internal/store"
)

var testSecret = []byte("realtime-test-secret-of-32-bytes")

// fakeOutbox records frames in memory.
type fakeOutbox struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeOutbox) Send(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.frames = append(f.frames, payload)
	return true
}

func (f *fakeOutbox) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeOutbox) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (f *fakeOutbox) events(t *testing.T) []frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]frame, 0, len(f.frames))
	for _, raw := range f.frames {
		var fr frame
		require.NoError(t, json.Unmarshal(raw, &fr))
		out = append(out, fr)
	}
	return out
}

func (f *fakeOutbox) eventNames(t *testing.T) []string {
	t.Helper()
	var names []string
	for _, fr := range f.events(t) {
		names = append(names, fr.Event)
	}
	return names
}

func (f *fakeOutbox) last(t *testing.T) frame {
	t.Helper()
	evs := f.events(t)
	require.NotEmpty(t, evs, "expected at least one frame")
	return evs[len(evs)-1]
}

func (f *fakeOutbox) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

type fixture struct {
	store    *store.MockStore
	router   *room.Router
	hub      *Hub
	verifier *auth.JWTVerifier
	dedupe   *dedupe.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.NewMockStore()
	for _, u := range []*store.User{
		{ID: "u1", Name: "Alice"},
		{ID: "u2", Name: "Bob"},
		{ID: "u3", Name: "Carol"},
	} {
		require.NoError(t, st.CreateUser(t.Context(), u))
	}

	verifier, err := auth.NewJWTVerifier(testSecret)
	require.NoError(t, err)

	router := room.NewRouter(nil)
	svc := conversation.New(st, embedding.NewHashing(16), NewRoomPublisher(router, nil), conversation.Config{}, nil)
	cache := dedupe.New(time.Minute, 100)
	t.Cleanup(cache.Close)

	hub := NewHub(HubConfig{Router: router, Verifier: verifier, Messages: svc, Dedupe: cache})
	t.Cleanup(hub.Shutdown)

	return &fixture{store: st, router: router, hub: hub, verifier: verifier, dedupe: cache}
}

func (fx *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := fx.verifier.Generate(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (fx *fixture) open(t *testing.T) (*Session, *fakeOutbox) {
	t.Helper()
	out := &fakeOutbox{}
	s := fx.hub.Open(out)
	require.NotNil(t, s)
	return s, out
}

func send(t *testing.T, s *Session, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	s.Handle(t.Context(), raw)
}

// connect opens a session authenticated as userID and joined with peerID.
func (fx *fixture) connect(t *testing.T, userID, peerID string) (*Session, *fakeOutbox) {
	t.Helper()
	s, out := fx.open(t)
	send(t, s, EventAuthenticate, fx.token(t, userID))
	if peerID != "" {
		send(t, s, EventJoinRoom, map[string]string{"otherUserId": peerID})
	}
	out.reset()
	return s, out
}

func TestSession_AuthenticateWithBareToken(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.open(t)
	assert.Equal(t, StateUnauthenticated, s.State())

	send(t, s, EventAuthenticate, fx.token(t, "u1"))

	last := out.last(t)
	assert.Equal(t, EventAuthenticated, last.Event)
	assert.JSONEq(t, `{"userId":"u1"}`, string(last.Data))
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "u1", s.UserID())
}

func TestSession_AuthenticateWithTokenObject(t *testing.T) {
	fx := newFixture(t)
	s, _ := fx.open(t)

	send(t, s, EventAuthenticate, map[string]string{"token": fx.token(t, "u2")})
	assert.Equal(t, "u2", s.UserID())
}

func TestSession_AuthenticateFailureClosesConnection(t *testing.T) {
	for _, data := range []any{"garbage", "", nil, map[string]string{"nope": "x"}} {
		fx := newFixture(t)
		s, out := fx.open(t)

		send(t, s, EventAuthenticate, data)

		last := out.last(t)
		assert.Equal(t, EventUnauthorized, last.Event)
		assert.JSONEq(t, `{"message":"Authentication failed"}`, string(last.Data))
		assert.True(t, out.isClosed())
		assert.Equal(t, StateClosed, s.State())
		assert.Zero(t, fx.hub.Count())
	}
}

func TestSession_ReauthAsOtherUserLeavesRoom(t *testing.T) {
	fx := newFixture(t)
	s, _ := fx.connect(t, "u1", "u2")
	require.Equal(t, 1, fx.router.Members("u1-u2"))

	send(t, s, EventAuthenticate, fx.token(t, "u3"))

	assert.Equal(t, "u3", s.UserID())
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Zero(t, fx.router.Members("u1-u2"))
}

func TestSession_UnauthenticatedCommands(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.open(t)

	send(t, s, EventSendMessage, map[string]string{"receiver_id": "u2", "message": "hello"})
	assert.Equal(t, EventUnauthorized, out.last(t).Event)
	assert.JSONEq(t, `{"message":"Please authenticate first"}`, string(out.last(t).Data))
	assert.Zero(t, fx.store.CreateCalls, "nothing may be persisted before authentication")

	send(t, s, EventJoinRoom, map[string]string{"otherUserId": "u2"})
	assert.Equal(t, EventUnauthorized, out.last(t).Event)
	assert.Zero(t, fx.router.Rooms())

	out.reset()
	send(t, s, EventTyping, map[string]any{"receiver_id": "u2", "isTyping": true})
	assert.Empty(t, out.events(t), "typing before authentication is ignored")
	assert.Equal(t, StateUnauthenticated, s.State())
}

func TestSession_JoinRoomUsesCanonicalID(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.connect(t, "u2", "")

	send(t, s, EventJoinRoom, map[string]string{"otherUserId": "u1", "roomId": "whatever"})

	last := out.last(t)
	assert.Equal(t, EventRoomJoined, last.Event)
	assert.JSONEq(t, `{"roomId":"u1-u2"}`, string(last.Data))
	assert.Equal(t, StateInRoom, s.State())
	assert.Equal(t, 1, fx.router.Members("u1-u2"))
}

func TestSession_JoinRoomLeavesPreviousRoom(t *testing.T) {
	fx := newFixture(t)
	s, _ := fx.connect(t, "u1", "u2")

	send(t, s, EventJoinRoom, map[string]string{"otherUserId": "u3"})

	assert.Zero(t, fx.router.Members("u1-u2"))
	assert.Equal(t, 1, fx.router.Members("u1-u3"))
	assert.Equal(t, "u1-u3", s.RoomID())
}

func TestSession_JoinRoomRejectsBadPeers(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.connect(t, "u1", "")

	send(t, s, EventJoinRoom, map[string]string{})
	assert.JSONEq(t, `{"message":"otherUserId is required"}`, string(out.last(t).Data))

	send(t, s, EventJoinRoom, map[string]string{"otherUserId": "u1"})
	assert.JSONEq(t, `{"message":"Cannot join a room with yourself"}`, string(out.last(t).Data))
	assert.Zero(t, fx.router.Rooms())
}

func TestSession_HyphenatedIDsDoNotShareRooms(t *testing.T) {
	fx := newFixture(t)
	for _, u := range []*store.User{{ID: "x", Name: "Xena"}, {ID: "x-y", Name: "Xavier"}, {ID: "z", Name: "Zoe"}} {
		require.NoError(t, fx.store.CreateUser(t.Context(), u))
	}

	// "y-z" is not a user; under a plain join its room would be "x-y-z"
	_, eavesdropperOut := fx.connect(t, "x", "y-z")
	sender, senderOut := fx.connect(t, "x-y", "z")
	_, receiverOut := fx.connect(t, "z", "x-y")

	send(t, sender, EventSendMessage, map[string]string{"receiver_id": "z", "message": "private to z"})

	assert.Equal(t, EventReceiveMessage, senderOut.last(t).Event)
	assert.Equal(t, EventReceiveMessage, receiverOut.last(t).Event)
	assert.Empty(t, eavesdropperOut.events(t))

	send(t, sender, EventTyping, map[string]any{"receiver_id": "z", "isTyping": true})
	assert.Equal(t, EventUserTyping, receiverOut.last(t).Event)
	assert.Empty(t, eavesdropperOut.events(t))
}

func TestSession_JoinRacingCloseLeavesNoMembership(t *testing.T) {
	fx := newFixture(t)
	token := fx.token(t, "u1")
	join, err := json.Marshal(map[string]any{"event": EventJoinRoom, "data": map[string]string{"otherUserId": "u2"}})
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		s, _ := fx.open(t)
		send(t, s, EventAuthenticate, token)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Handle(t.Context(), join)
		}()
		go func() {
			defer wg.Done()
			s.Close()
		}()
		wg.Wait()

		require.Zero(t, fx.router.Rooms(), "iteration %d: closed session left in a room", i)
		require.Equal(t, StateClosed, s.State())
	}
}

func TestSession_LeaveRoomIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.connect(t, "u1", "u2")

	send(t, s, EventLeaveRoom, "u1-u2")
	assert.Equal(t, EventRoomLeft, out.last(t).Event)
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Zero(t, fx.router.Rooms())

	out.reset()
	send(t, s, EventLeaveRoom, "u1-u2")
	send(t, s, EventLeaveRoom, map[string]string{"roomId": "u1-u3"})
	assert.Empty(t, out.events(t))

	// Join still works after leaving
	send(t, s, EventJoinRoom, map[string]string{"otherUserId": "u2"})
	assert.Equal(t, StateInRoom, s.State())
}

func TestSession_SendMessageReachesEveryRoomMember(t *testing.T) {
	fx := newFixture(t)
	alice, aliceOut := fx.connect(t, "u1", "u2")
	_, bobOut := fx.connect(t, "u2", "u1")
	leaver, leaverOut := fx.connect(t, "u2", "u1")
	_, outsiderOut := fx.connect(t, "u3", "u1")

	send(t, leaver, EventLeaveRoom, "")
	leaverOut.reset()

	send(t, alice, EventSendMessage, map[string]string{"receiver_id": "u2", "message": " hello "})

	for name, out := range map[string]*fakeOutbox{"sender": aliceOut, "receiver": bobOut} {
		last := out.last(t)
		require.Equal(t, EventReceiveMessage, last.Event, name)

		var view conversation.MessageView
		require.NoError(t, json.Unmarshal(last.Data, &view))
		assert.Equal(t, "hello", view.Message)
		assert.Equal(t, conversation.Participant{ID: "u1", Name: "Alice"}, view.Sender)
		assert.Equal(t, conversation.Participant{ID: "u2", Name: "Bob"}, view.Receiver)
	}
	assert.Empty(t, leaverOut.events(t), "a connection that left must not receive the message")
	assert.Empty(t, outsiderOut.events(t))

	msgs, err := fx.store.ListConversation(t.Context(), store.ConversationQuery{UserID: "u1", PeerID: "u2"})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSession_SendWithoutJoiningStillPersists(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.connect(t, "u1", "")
	_, bobOut := fx.connect(t, "u2", "u1")

	send(t, s, EventSendMessage, map[string]string{"receiver_id": "u2", "message": "hi"})

	assert.Empty(t, out.events(t), "sender is not in the room")
	assert.Equal(t, EventReceiveMessage, bobOut.last(t).Event)
}

func TestSession_EmptyMessageIsDropped(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.connect(t, "u1", "u2")

	send(t, s, EventSendMessage, map[string]string{"receiver_id": "u2", "message": "   "})

	assert.Empty(t, out.events(t))
	assert.Zero(t, fx.store.CreateCalls)
}

func TestSession_SendErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]string
		wantMsg string
	}{
		{"self send", map[string]string{"receiver_id": "u1", "message": "me"}, "Cannot send messages to yourself"},
		{"missing receiver", map[string]string{"message": "hi"}, "senderId, receiverId, and message are required"},
		{"unknown receiver", map[string]string{"receiver_id": "ghost", "message": "hi"}, "Receiver not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			s, out := fx.connect(t, "u1", "u2")

			send(t, s, EventSendMessage, tt.data)

			names := out.eventNames(t)
			assert.Equal(t, []string{EventError}, names, "only the sender sees the error")
			assert.JSONEq(t, `{"message":"`+tt.wantMsg+`"}`, string(out.last(t).Data))
			assert.Zero(t, fx.store.CreateCalls)
		})
	}
}

func TestSession_PersistenceFailureEmitsErrorOnly(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.connect(t, "u1", "u2")
	_, bobOut := fx.connect(t, "u2", "u1")
	fx.store.CreateErr = errors.New("disk full")

	send(t, s, EventSendMessage, map[string]string{"receiver_id": "u2", "message": "lost"})

	assert.Equal(t, []string{EventError}, out.eventNames(t))
	assert.JSONEq(t, `{"message":"Failed to send message"}`, string(out.last(t).Data))
	assert.Empty(t, bobOut.events(t), "nothing is broadcast when persistence fails")
}

func TestSession_DuplicateClientMessageIDIsDropped(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.connect(t, "u1", "u2")
	data := map[string]string{"receiver_id": "u2", "message": "once", "client_msg_id": "c-1"}

	send(t, s, EventSendMessage, data)
	send(t, s, EventSendMessage, data)

	assert.Equal(t, []string{EventReceiveMessage}, out.eventNames(t))
	assert.Equal(t, 1, fx.store.CreateCalls)
}

func TestSession_FailedSendReleasesClientMessageID(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.connect(t, "u1", "u2")
	data := map[string]string{"receiver_id": "u2", "message": "retry me", "client_msg_id": "c-2"}

	fx.store.CreateErr = errors.New("transient")
	send(t, s, EventSendMessage, data)
	fx.store.CreateErr = nil
	send(t, s, EventSendMessage, data)

	assert.Equal(t, []string{EventError, EventReceiveMessage}, out.eventNames(t))
}

func TestSession_TypingExcludesSender(t *testing.T) {
	fx := newFixture(t)
	alice, aliceOut := fx.connect(t, "u1", "u2")
	_, bobOut := fx.connect(t, "u2", "u1")

	send(t, alice, EventTyping, map[string]any{"receiver_id": "u2", "isTyping": true, "userName": "Alice"})

	assert.Empty(t, aliceOut.events(t))
	last := bobOut.last(t)
	assert.Equal(t, EventUserTyping, last.Event)
	assert.JSONEq(t, `{"user":"Alice","isTyping":true}`, string(last.Data))
	assert.Zero(t, fx.store.CreateCalls, "typing is never persisted")
}

func TestSession_MalformedAndUnknownEvents(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.connect(t, "u1", "")

	s.Handle(t.Context(), []byte("{not json"))
	assert.JSONEq(t, `{"message":"Malformed event"}`, string(out.last(t).Data))

	send(t, s, "dance", nil)
	assert.JSONEq(t, `{"message":"Unknown event: dance"}`, string(out.last(t).Data))
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestSession_CloseLeavesRoom(t *testing.T) {
	fx := newFixture(t)
	s, out := fx.connect(t, "u1", "u2")

	s.Close()
	s.Close()

	assert.Equal(t, StateClosed, s.State())
	assert.True(t, out.isClosed())
	assert.Zero(t, fx.router.Rooms())
	assert.Zero(t, fx.hub.Count())

	// Frames after close are ignored
	send(t, s, EventJoinRoom, map[string]string{"otherUserId": "u2"})
	assert.Zero(t, fx.router.Rooms())
}

func TestHub_ShutdownClosesSessions(t *testing.T) {
	fx := newFixture(t)
	_, out1 := fx.connect(t, "u1", "u2")
	_, out2 := fx.connect(t, "u2", "u1")

	fx.hub.Shutdown()

	assert.True(t, out1.isClosed())
	assert.True(t, out2.isClosed())
	assert.Zero(t, fx.hub.Count())
	assert.Nil(t, fx.hub.Open(&fakeOutbox{}), "no sessions after shutdown")
	assert.Error(t, fx.hub.Context().Err())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "in_room", StateInRoom.String())
	assert.Equal(t, "unknown", State(42).String())
}
