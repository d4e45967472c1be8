// Package relay is the realtime side of Tunehub: one WebSocket per signed-in
// listener, carrying presence, activity updates and direct messages.
package relay

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"Tunehub/core/auth"
	"Tunehub/core/presence"
	"Tunehub/logger"
	"Tunehub/model"

	"github.com/gorilla/websocket"
)

// BearerSubprotocol is the Sec-WebSocket-Protocol marker that precedes a
// token when a browser cannot use the query string.
const BearerSubprotocol = "tunehub.bearer"

// Gateway is the persistence the relay needs for direct messages.
type Gateway interface {
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)
	CreateMessage(ctx context.Context, msg *model.Message) error
}

// TokenResolver verifies handshake tokens.
type TokenResolver interface {
	Resolve(token string) (*auth.Identity, error)
}

// OriginChecker decides whether a browser origin may open a connection.
type OriginChecker interface {
	Allowed(origin string) bool
}

// Observer is told about presence changes after the registry has applied
// them. Calls arrive one at a time, in the order the changes were applied,
// from a goroutine that never holds up a connection.
type Observer interface {
	Online(ctx context.Context, externalID string)
	Offline(ctx context.Context, externalID string)
	ActivityChanged(ctx context.Context, externalID, activity string)
}

// Observers fans every change out to each observer in order.
type Observers []Observer

func (o Observers) Online(ctx context.Context, externalID string) {
	for _, ob := range o {
		ob.Online(ctx, externalID)
	}
}

func (o Observers) Offline(ctx context.Context, externalID string) {
	for _, ob := range o {
		ob.Offline(ctx, externalID)
	}
}

func (o Observers) ActivityChanged(ctx context.Context, externalID, activity string) {
	for _, ob := range o {
		ob.ActivityChanged(ctx, externalID, activity)
	}
}

// Options tunes a Server. The zero value is compatibility mode with no
// origin restriction and no persistence timeout.
type Options struct {
	Hardened       bool
	PersistTimeout time.Duration
	Resolver       TokenResolver
	Origins        OriginChecker
	Observer       Observer
	SendBuffer     int
}

// Server accepts relay connections and routes their events.
type Server struct {
	registry *presence.Registry[*Client]
	gateway  Gateway
	opts     Options
	upgrader websocket.Upgrader

	// presenceMu orders registry changes with the broadcasts and observer
	// calls that describe them, as the hub loop does.
	presenceMu sync.Mutex
	observers  *notifier
}

// NewServer wires a relay around an injected registry.
func NewServer(registry *presence.Registry[*Client], gateway Gateway, opts Options) *Server {
	s := &Server{
		registry: registry,
		gateway:   gateway,
		opts:      opts,
		observers: newNotifier(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{BearerSubprotocol},
		CheckOrigin: func(r *http.Request) bool {
			if s.opts.Origins == nil {
				return true
			}
			return s.opts.Origins.Allowed(r.Header.Get("Origin"))
		},
	}
	return s
}

// Registry exposes the presence registry the server writes to.
func (s *Server) Registry() *presence.Registry[*Client] {
	return s.registry
}

// ServeHTTP upgrades the request and runs the connection until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		logger.Debug("relay upgrade failed",
			logger.ErrorField(err),
			logger.String("origin", r.Header.Get("Origin")))
		return
	}

	externalID, reason := s.authenticate(r)
	c := newClient(conn, externalID, s.opts.SendBuffer)
	if reason != "" {
		logger.Info("relay handshake rejected",
			logger.String("reason", reason),
			logger.String("remote", r.RemoteAddr))
		c.emit(EventError, reason)
		c.Close()
		c.writePump()
		return
	}

	s.connect(c)
	go c.writePump()

	// the request context ends when the handler returns, not when the
	// socket closes, so the pump gets its own
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.readPump(ctx, s.dispatch)
	s.disconnect(c)
}

// authenticate returns the external id for the handshake, or the text of
// the error event that rejects it.
func (s *Server) authenticate(r *http.Request) (string, string) {
	claimed := strings.TrimSpace(r.URL.Query().Get("userId"))

	if !s.opts.Hardened {
		if claimed == "" {
			return "", ErrTextMissingUserID
		}
		return claimed, ""
	}

	token := handshakeToken(r)
	if token == "" || s.opts.Resolver == nil {
		return "", ErrTextAuthRequired
	}
	identity, err := s.opts.Resolver.Resolve(token)
	if err != nil {
		logger.Debug("relay token rejected", logger.ErrorField(err))
		return "", ErrTextInvalidToken
	}
	if claimed != "" && claimed != identity.ExternalID {
		return "", ErrTextUserIDMismatch
	}
	return identity.ExternalID, ""
}

// handshakeToken reads the token from the query string, or from a
// "tunehub.bearer, <token>" subprotocol list.
func handshakeToken(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	protocols := websocket.Subprotocols(r)
	for i, p := range protocols {
		if p == BearerSubprotocol && i+1 < len(protocols) {
			return protocols[i+1]
		}
	}
	return ""
}

func (s *Server) connect(c *Client) {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()

	previous, replaced := s.registry.Register(c.externalID, c)
	if replaced {
		logger.Info("relay connection replaced", logger.String("user", c.externalID))
		previous.Close()
	}
	s.notify(func(ctx context.Context, o Observer) { o.Online(ctx, c.externalID) })

	logger.Info("relay client registered",
		logger.String("user", c.externalID),
		logger.Int("online", s.registry.Len()))

	snap := s.registry.Snapshot()
	s.broadcast(EventUsersOnline, snap.Online, nil)
	s.broadcast(EventActivities, snap.Activities, nil)
}

// disconnect removes c if it is still the registered connection. A replaced
// connection leaves presence alone and broadcasts nothing.
func (s *Server) disconnect(c *Client) {
	c.Close()

	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()

	if !s.registry.Release(c.externalID, c) {
		return
	}
	s.notify(func(ctx context.Context, o Observer) { o.Offline(ctx, c.externalID) })

	logger.Info("relay client unregistered",
		logger.String("user", c.externalID),
		logger.Int("online", s.registry.Len()))

	s.broadcast(EventUsersOnline, s.registry.Snapshot().Online, nil)
}

// notify hands an observer call to the notifier. Must be called with
// presenceMu held so calls keep the order of the changes.
func (s *Server) notify(call func(ctx context.Context, o Observer)) {
	if s.opts.Observer == nil {
		return
	}
	ob := s.opts.Observer
	s.observers.post(func() { call(context.Background(), ob) })
}

// dispatch handles a single inbound frame. Panics stay inside the frame.
func (s *Server) dispatch(ctx context.Context, c *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("relay handler panic",
				logger.Any("panic", r),
				logger.String("user", c.externalID),
				logger.String("stack", string(debug.Stack())))
		}
	}()

	event, payload, err := Decode(raw)
	if err != nil {
		logger.Debug("relay frame dropped",
			logger.ErrorField(err),
			logger.String("event", string(event)),
			logger.String("user", c.externalID))
		if event == EventSendMessage && s.opts.Hardened {
			c.emit(EventError, ErrTextInvalidMessage)
		}
		return
	}

	switch p := payload.(type) {
	case UpdateActivity:
		s.updateActivity(c, p.Label())
	case SendMessage:
		s.sendMessage(ctx, c, p)
	}
}

func (s *Server) updateActivity(c *Client, label string) {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()

	// only the live connection may speak for its id
	if current, ok := s.registry.Handle(c.externalID); !ok || current != c {
		return
	}
	if !s.registry.SetActivity(c.externalID, label) {
		return
	}
	s.notify(func(ctx context.Context, o Observer) { o.ActivityChanged(ctx, c.externalID, label) })
	s.broadcast(EventActivityUpdated, ActivityUpdated{UserID: c.externalID, Activity: label}, c)
}

// Broadcast sends an event to every live connection.
func (s *Server) Broadcast(event Event, payload interface{}) {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()
	s.broadcast(event, payload, nil)
}

// broadcast encodes once and fans out, skipping except. Callers hold
// presenceMu.
func (s *Server) broadcast(event Event, payload interface{}, except *Client) {
	frame, err := Encode(event, payload)
	if err != nil {
		logger.Error("failed to encode broadcast",
			logger.ErrorField(err),
			logger.String("event", string(event)))
		return
	}
	for _, h := range s.registry.Handles() {
		if h == except {
			continue
		}
		h.enqueue(frame)
	}
}

// Online returns the number of connected users.
func (s *Server) Online() int {
	return s.registry.Len()
}

// Close drops every connection. Their read pumps then unregister them.
func (s *Server) Close() {
	for _, h := range s.registry.Handles() {
		h.Close()
	}
}

func (s *Server) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.PersistTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.PersistTimeout)
}
