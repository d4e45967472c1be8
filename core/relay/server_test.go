package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"Tunehub/config"
	"Tunehub/core/auth"
	"Tunehub/core/presence"
	"Tunehub/model"
	"Tunehub/repository"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryGateway is an in-memory user and message store.
type memoryGateway struct {
	mu          sync.Mutex
	users       map[string]*model.User
	messages    []*model.Message
	createErr   error
	createDelay time.Duration
}

func newMemoryGateway(users ...*model.User) *memoryGateway {
	g := &memoryGateway{users: make(map[string]*model.User)}
	for _, u := range users {
		g.users[u.ID] = u
	}
	return g
}

func (g *memoryGateway) FindUserByID(_ context.Context, id string) (*model.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if u, ok := g.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (g *memoryGateway) FindByExternalID(_ context.Context, externalID string) (*model.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range g.users {
		if u.ExternalID == externalID {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (g *memoryGateway) CreateMessage(ctx context.Context, msg *model.Message) error {
	if g.createDelay > 0 {
		select {
		case <-time.After(g.createDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return g.createErr
	}
	msg.ID = fmt.Sprintf("m%d", len(g.messages)+1)
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt
	g.messages = append(g.messages, msg)
	return nil
}

func (g *memoryGateway) stored() []*model.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*model.Message(nil), g.messages...)
}

var (
	userA = &model.User{Base: model.Base{ID: "id-a"}, ExternalID: "ext-a", FullName: "Alice"}
	userB = &model.User{Base: model.Base{ID: "id-b"}, ExternalID: "ext-b", FullName: "Bob"}
)

type testRelay struct {
	srv *Server
	url string
}

func newTestRelay(t *testing.T, gw Gateway, opts Options) *testRelay {
	t.Helper()
	srv := NewServer(presence.NewRegistry[*Client](), gw, opts)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &testRelay{srv: srv, url: "ws" + strings.TrimPrefix(ts.URL, "http")}
}

func (tr *testRelay) dial(t *testing.T, query url.Values, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(tr.url+"?"+query.Encode(), header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// join connects externalID and consumes its initial presence frames.
func (tr *testRelay) join(t *testing.T, externalID string) *websocket.Conn {
	t.Helper()
	conn := tr.dial(t, url.Values{"userId": {externalID}}, nil)
	expect(t, conn, EventUsersOnline)
	expect(t, conn, EventActivities)
	return conn
}

func next(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func expect(t *testing.T, conn *websocket.Conn, event Event) Envelope {
	t.Helper()
	env := next(t, conn)
	require.Equal(t, event, env.Type, "payload: %s", env.Data)
	return env
}

func decodeData(t *testing.T, env Envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

// expectSilence asserts nothing arrives for a while. The connection cannot
// be read from afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", raw)
	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected timeout, got %v", err)
}

// expectClosed reads until the server closes the socket.
func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			require.False(t, errors.As(err, &netErr) && netErr.Timeout(), "connection was not closed")
			return
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, event Event, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Type: event, Data: data, Timestamp: time.Now().UnixMilli()}))
}

func TestConnectBroadcastsPresence(t *testing.T) {
	tr := newTestRelay(t, newMemoryGateway(), Options{})

	a := tr.dial(t, url.Values{"userId": {"ext-a"}}, nil)
	var online []string
	decodeData(t, expect(t, a, EventUsersOnline), &online)
	assert.Equal(t, []string{"ext-a"}, online)
	var activities [][2]string
	decodeData(t, expect(t, a, EventActivities), &activities)
	assert.Equal(t, [][2]string{{"ext-a", "Idle"}}, activities)

	b := tr.dial(t, url.Values{"userId": {"ext-b"}}, nil)
	for _, conn := range []*websocket.Conn{b, a} {
		decodeData(t, expect(t, conn, EventUsersOnline), &online)
		assert.Equal(t, []string{"ext-a", "ext-b"}, online)
		decodeData(t, expect(t, conn, EventActivities), &activities)
		assert.Equal(t, [][2]string{{"ext-a", "Idle"}, {"ext-b", "Idle"}}, activities)
	}
	assert.Equal(t, 2, tr.srv.Online())
}

func TestHandshakeWithoutUserID(t *testing.T) {
	tr := newTestRelay(t, newMemoryGateway(), Options{})

	conn := tr.dial(t, url.Values{}, nil)
	var text string
	decodeData(t, expect(t, conn, EventError), &text)
	assert.Equal(t, ErrTextMissingUserID, text)
	expectClosed(t, conn)
	assert.Equal(t, 0, tr.srv.Online())
}

func TestUpdateActivityReachesOthersOnly(t *testing.T) {
	tr := newTestRelay(t, newMemoryGateway(), Options{})
	a := tr.join(t, "ext-a")
	b := tr.join(t, "ext-b")
	expect(t, a, EventUsersOnline)
	expect(t, a, EventActivities)

	send(t, a, EventUpdateActivity, UpdateActivity{Activity: "Playing Song X by Artist Y"})

	var updated ActivityUpdated
	decodeData(t, expect(t, b, EventActivityUpdated), &updated)
	assert.Equal(t, ActivityUpdated{UserID: "ext-a", Activity: "Playing Song X by Artist Y"}, updated)

	activity, ok := tr.srv.Registry().Activity("ext-a")
	require.True(t, ok)
	assert.Equal(t, "Playing Song X by Artist Y", activity)

	// an empty label means idle
	send(t, a, EventUpdateActivity, UpdateActivity{})
	decodeData(t, expect(t, b, EventActivityUpdated), &updated)
	assert.Equal(t, "Idle", updated.Activity)

	expectSilence(t, a)
}

func TestSendMessageToOnlineReceiver(t *testing.T) {
	gw := newMemoryGateway(userA, userB)
	tr := newTestRelay(t, gw, Options{})
	a := tr.join(t, "ext-a")
	b := tr.join(t, "ext-b")
	expect(t, a, EventUsersOnline)
	expect(t, a, EventActivities)

	send(t, a, EventSendMessage, SendMessage{SenderID: "id-a", ReceiverID: "id-b", Content: "hi"})

	var received, sent model.Message
	decodeData(t, expect(t, b, EventReceiveMessage), &received)
	decodeData(t, expect(t, a, EventMessageSent), &sent)

	assert.Equal(t, "id-a", received.Sender)
	assert.Equal(t, "id-b", received.Receiver)
	assert.Equal(t, "hi", received.Content)
	assert.NotEmpty(t, received.ID)
	assert.Equal(t, received.ID, sent.ID)

	stored := gw.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, "hi", stored[0].Content)
}

func TestSendMessageToOfflineReceiver(t *testing.T) {
	gw := newMemoryGateway(userA, userB)
	tr := newTestRelay(t, gw, Options{})
	a := tr.join(t, "ext-a")

	send(t, a, EventSendMessage, SendMessage{SenderID: "id-a", ReceiverID: "id-b", Content: "later"})

	var sent model.Message
	decodeData(t, expect(t, a, EventMessageSent), &sent)
	assert.Equal(t, "later", sent.Content)
	assert.Len(t, gw.stored(), 1)
}

func TestSendMessageToUnknownReceiver(t *testing.T) {
	gw := newMemoryGateway(userA)
	tr := newTestRelay(t, gw, Options{})
	a := tr.join(t, "ext-a")

	send(t, a, EventSendMessage, SendMessage{SenderID: "id-a", ReceiverID: "nobody", Content: "hello?"})

	expectSilence(t, a)
	assert.Empty(t, gw.stored())
}

func TestSendMessagePersistFailure(t *testing.T) {
	gw := newMemoryGateway(userA, userB)
	gw.createErr = errors.New("disk full")
	tr := newTestRelay(t, gw, Options{})
	a := tr.join(t, "ext-a")
	b := tr.join(t, "ext-b")
	expect(t, a, EventUsersOnline)
	expect(t, a, EventActivities)

	send(t, a, EventSendMessage, SendMessage{SenderID: "id-a", ReceiverID: "id-b", Content: "hi"})

	var text string
	decodeData(t, expect(t, a, EventError), &text)
	assert.Equal(t, ErrTextSendFailed, text)
	expectSilence(t, b)
}

func TestSendMessagePersistTimeout(t *testing.T) {
	gw := newMemoryGateway(userA, userB)
	gw.createDelay = time.Second
	tr := newTestRelay(t, gw, Options{PersistTimeout: 50 * time.Millisecond})
	a := tr.join(t, "ext-a")

	send(t, a, EventSendMessage, SendMessage{SenderID: "id-a", ReceiverID: "id-b", Content: "slow"})

	var text string
	decodeData(t, expect(t, a, EventError), &text)
	assert.Equal(t, ErrTextSendFailed, text)
	assert.Empty(t, gw.stored())
}

func TestMalformedMessageDroppedInCompatibilityMode(t *testing.T) {
	gw := newMemoryGateway(userA, userB)
	tr := newTestRelay(t, gw, Options{})
	a := tr.join(t, "ext-a")

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"send_message","data":{"receiverId":1}}`)))
	send(t, a, EventSendMessage, SendMessage{ReceiverID: "id-b", Content: "no sender"})
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`garbage`)))

	expectSilence(t, a)
	assert.Empty(t, gw.stored())
}

func TestDisconnectBroadcastsPresence(t *testing.T) {
	tr := newTestRelay(t, newMemoryGateway(), Options{})
	a := tr.join(t, "ext-a")
	b := tr.join(t, "ext-b")
	expect(t, a, EventUsersOnline)
	expect(t, a, EventActivities)

	require.NoError(t, b.Close())

	var online []string
	decodeData(t, expect(t, a, EventUsersOnline), &online)
	assert.Equal(t, []string{"ext-a"}, online)

	_, ok := tr.srv.Registry().Activity("ext-b")
	assert.False(t, ok)
	assert.Equal(t, 1, tr.srv.Online())
}

func TestReconnectReplacesConnection(t *testing.T) {
	tr := newTestRelay(t, newMemoryGateway(), Options{})
	watcher := tr.join(t, "ext-b")

	first := tr.join(t, "ext-a")
	expect(t, watcher, EventUsersOnline)
	expect(t, watcher, EventActivities)

	send(t, first, EventUpdateActivity, UpdateActivity{Activity: "Playing Z"})
	expect(t, watcher, EventActivityUpdated)

	second := tr.dial(t, url.Values{"userId": {"ext-a"}}, nil)
	var activities [][2]string
	expect(t, second, EventUsersOnline)
	decodeData(t, expect(t, second, EventActivities), &activities)
	assert.Equal(t, [][2]string{{"ext-b", "Idle"}, {"ext-a", "Playing Z"}}, activities)

	expect(t, watcher, EventUsersOnline)
	expect(t, watcher, EventActivities)

	// the old connection is dropped, and its disconnect must not take the
	// new one offline
	expectClosed(t, first)
	expectSilence(t, watcher)

	h, ok := tr.srv.Registry().Handle("ext-a")
	require.True(t, ok)
	assert.Equal(t, "ext-a", h.ExternalID())
	assert.Equal(t, 2, tr.srv.Online())
}

func TestBroadcastReachesEveryone(t *testing.T) {
	tr := newTestRelay(t, newMemoryGateway(), Options{})
	a := tr.join(t, "ext-a")
	b := tr.join(t, "ext-b")
	expect(t, a, EventUsersOnline)
	expect(t, a, EventActivities)

	tr.srv.Broadcast(EventNewActivity, map[string]string{"type": "listened_to_song"})
	expect(t, a, EventNewActivity)
	expect(t, b, EventNewActivity)
}

func TestOriginPolicy(t *testing.T) {
	policy := config.NewOriginPolicy([]string{"http://localhost:3000"})
	tr := newTestRelay(t, newMemoryGateway(), Options{Origins: policy})

	header := http.Header{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(tr.url+"?userId=ext-a", header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 0, tr.srv.Online())

	ok := tr.dial(t, url.Values{"userId": {"ext-a"}}, http.Header{"Origin": {"http://localhost:3000"}})
	expect(t, ok, EventUsersOnline)
}

func TestHardenedHandshake(t *testing.T) {
	resolver := auth.NewResolver("relay-secret", "", time.Hour)
	token, err := resolver.Issue("ext-a", "a@example.com", "Alice")
	require.NoError(t, err)

	tr := newTestRelay(t, newMemoryGateway(userA), Options{Hardened: true, Resolver: resolver})

	tests := []struct {
		name  string
		query url.Values
		want  string
	}{
		{"claimed id without token", url.Values{"userId": {"ext-a"}}, ErrTextAuthRequired},
		{"bad token", url.Values{"token": {"nope"}}, ErrTextInvalidToken},
		{"mismatched id", url.Values{"token": {token}, "userId": {"ext-b"}}, ErrTextUserIDMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := tr.dial(t, tt.query, nil)
			var text string
			decodeData(t, expect(t, conn, EventError), &text)
			assert.Equal(t, tt.want, text)
			expectClosed(t, conn)
		})
	}

	conn := tr.dial(t, url.Values{"token": {token}}, nil)
	var online []string
	decodeData(t, expect(t, conn, EventUsersOnline), &online)
	assert.Equal(t, []string{"ext-a"}, online)
}

func TestHardenedSubprotocolToken(t *testing.T) {
	resolver := auth.NewResolver("relay-secret", "", time.Hour)
	token, err := resolver.Issue("ext-a", "", "")
	require.NoError(t, err)
	tr := newTestRelay(t, newMemoryGateway(userA), Options{Hardened: true, Resolver: resolver})

	dialer := websocket.Dialer{Subprotocols: []string{BearerSubprotocol, token}}
	conn, resp, err := dialer.Dial(tr.url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	assert.Equal(t, BearerSubprotocol, conn.Subprotocol())
	expect(t, conn, EventUsersOnline)
}

func TestHardenedSenderIsDerived(t *testing.T) {
	resolver := auth.NewResolver("relay-secret", "", time.Hour)
	token, err := resolver.Issue("ext-a", "", "")
	require.NoError(t, err)

	gw := newMemoryGateway(userA, userB)
	tr := newTestRelay(t, gw, Options{Hardened: true, Resolver: resolver})
	a := tr.dial(t, url.Values{"token": {token}}, nil)
	expect(t, a, EventUsersOnline)
	expect(t, a, EventActivities)

	send(t, a, EventSendMessage, SendMessage{SenderID: "id-b", ReceiverID: "id-b", Content: "spoof"})
	var sent model.Message
	decodeData(t, expect(t, a, EventMessageSent), &sent)
	assert.Equal(t, "id-a", sent.Sender)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"send_message","data":{"content":"no receiver"}}`)))
	var text string
	decodeData(t, expect(t, a, EventError), &text)
	assert.Equal(t, ErrTextInvalidMessage, text)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) record(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, s)
}

func (o *recordingObserver) seen() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func (o *recordingObserver) Online(_ context.Context, id string)  { o.record("online:" + id) }
func (o *recordingObserver) Offline(_ context.Context, id string) { o.record("offline:" + id) }
func (o *recordingObserver) ActivityChanged(_ context.Context, id, activity string) {
	o.record("activity:" + id + ":" + activity)
}

func TestObserversSeePresenceChanges(t *testing.T) {
	first, second := &recordingObserver{}, &recordingObserver{}
	tr := newTestRelay(t, newMemoryGateway(), Options{Observer: Observers{first, second}})

	watcher := tr.join(t, "ext-b")
	a := tr.join(t, "ext-a")
	expect(t, watcher, EventUsersOnline)
	expect(t, watcher, EventActivities)

	send(t, a, EventUpdateActivity, UpdateActivity{Activity: "Playing Z"})
	expect(t, watcher, EventActivityUpdated)
	require.NoError(t, a.Close())
	expect(t, watcher, EventUsersOnline)

	want := []string{"online:ext-b", "online:ext-a", "activity:ext-a:Playing Z", "offline:ext-a"}
	for _, ob := range []*recordingObserver{first, second} {
		assert.Eventually(t, func() bool {
			return assert.ObjectsAreEqual(want, ob.seen())
		}, 2*time.Second, 20*time.Millisecond)
	}
}

// frames drains every frame queued for c.
func frames(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case raw := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func lastUsersOnline(t *testing.T, c *Client) []string {
	t.Helper()
	var online []string
	for _, env := range frames(t, c) {
		if env.Type == EventUsersOnline {
			online = nil
			require.NoError(t, json.Unmarshal(env.Data, &online))
		}
	}
	return online
}

// setObserver keeps the online set the way the redis mirror does.
type setObserver struct {
	mu     sync.Mutex
	online map[string]bool
}

func (o *setObserver) Online(_ context.Context, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.online[id] = true
}

func (o *setObserver) Offline(_ context.Context, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.online, id)
}

func (o *setObserver) ActivityChanged(context.Context, string, string) {}

func (o *setObserver) ids() map[string]bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]bool, len(o.online))
	for id := range o.online {
		out[id] = true
	}
	return out
}

func TestConcurrentPresenceChangesEndOnCurrentState(t *testing.T) {
	for run := 0; run < 500; run++ {
		mirror := &setObserver{online: make(map[string]bool)}
		s := NewServer(presence.NewRegistry[*Client](), newMemoryGateway(), Options{Observer: mirror})
		w, x, y := newClient(nil, "w", 64), newClient(nil, "x", 64), newClient(nil, "y", 64)
		s.connect(w)
		s.connect(y)
		frames(t, w)

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			<-start
			s.connect(x)
		}()
		go func() {
			defer wg.Done()
			<-start
			s.disconnect(y)
		}()
		go func() {
			defer wg.Done()
			<-start
			s.updateActivity(w, "Playing Q")
		}()
		close(start)
		wg.Wait()

		want := s.Registry().Snapshot().Online
		require.Equal(t, []string{"w", "x"}, want)
		require.Equal(t, want, lastUsersOnline(t, w), "run %d", run)

		select {
		case <-s.observers.wait():
		case <-time.After(2 * time.Second):
			t.Fatal("observer calls did not finish")
		}
		require.Equal(t, map[string]bool{"w": true, "x": true}, mirror.ids(), "run %d", run)
	}
}

// stalledObserver blocks every call until release is closed.
type stalledObserver struct {
	release chan struct{}
}

func (o stalledObserver) Online(context.Context, string)                  { <-o.release }
func (o stalledObserver) Offline(context.Context, string)                 { <-o.release }
func (o stalledObserver) ActivityChanged(context.Context, string, string) { <-o.release }

func TestStalledObserverDoesNotDelayConnections(t *testing.T) {
	ob := stalledObserver{release: make(chan struct{})}
	defer close(ob.release)
	tr := newTestRelay(t, newMemoryGateway(), Options{Observer: ob})

	b := tr.join(t, "ext-b")
	a := tr.join(t, "ext-a")
	expect(t, b, EventUsersOnline)
	expect(t, b, EventActivities)

	send(t, a, EventUpdateActivity, UpdateActivity{Activity: "Playing Z"})
	var got ActivityUpdated
	decodeData(t, expect(t, b, EventActivityUpdated), &got)
	assert.Equal(t, "Playing Z", got.Activity)
}
