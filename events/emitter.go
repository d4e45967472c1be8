package events

import (
	"context"
	"encoding/json"
	"time"

	"Tunehub/logger"
	"Tunehub/model"
	"Tunehub/repository"
)

// Event types.
const (
	TypeMessageCreated  = "message.created"
	TypeActivityLogged  = "activity.logged"
	TypeUserOnline      = "presence.online"
	TypeUserOffline     = "presence.offline"
	TypeActivityChanged = "presence.activity"
)

const publishTimeout = 2 * time.Second

// Event is the record value written to the topic.
type Event struct {
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	Data       interface{} `json:"data"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// Emitter encodes and publishes events. A nil Emitter drops everything.
type Emitter struct {
	pub Publisher
	now func() time.Time
}

// NewEmitter 创建事件发射器
func NewEmitter(pub Publisher) *Emitter {
	return &Emitter{pub: pub, now: time.Now}
}

// Emit publishes one event keyed by key. Failures are logged.
func (e *Emitter) Emit(ctx context.Context, typ, key string, data interface{}) {
	if e == nil || e.pub == nil {
		return
	}
	value, err := json.Marshal(Event{Type: typ, Key: key, Data: data, OccurredAt: e.now().UTC()})
	if err != nil {
		logger.Error("failed to encode event", logger.String("type", typ), logger.ErrorField(err))
		return
	}

	// the caller's request may already be finishing
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.pub.Publish(ctx, Record{Type: typ, Key: key, Value: value}); err != nil {
		logger.Warn("failed to publish event",
			logger.String("type", typ),
			logger.String("key", key),
			logger.ErrorField(err))
	}
}

type presenceData struct {
	UserID   string `json:"userId"`
	Activity string `json:"activity,omitempty"`
}

// Online, Offline and ActivityChanged make Emitter a relay observer.
func (e *Emitter) Online(ctx context.Context, externalID string) {
	e.Emit(ctx, TypeUserOnline, externalID, presenceData{UserID: externalID})
}

func (e *Emitter) Offline(ctx context.Context, externalID string) {
	e.Emit(ctx, TypeUserOffline, externalID, presenceData{UserID: externalID})
}

func (e *Emitter) ActivityChanged(ctx context.Context, externalID, activity string) {
	e.Emit(ctx, TypeActivityChanged, externalID, presenceData{UserID: externalID, Activity: activity})
}

// Messages publishes message.created after each stored message. The record
// is keyed by receiver so a consumer sees a user's inbox in order.
type Messages struct {
	repository.MessageRepository
	Emitter *Emitter
}

func (m Messages) CreateMessage(ctx context.Context, msg *model.Message) error {
	if err := m.MessageRepository.CreateMessage(ctx, msg); err != nil {
		return err
	}
	m.Emitter.Emit(ctx, TypeMessageCreated, msg.Receiver, msg)
	return nil
}

// Activities publishes activity.logged after each stored listen.
type Activities struct {
	repository.ActivityRepository
	Emitter *Emitter
}

func (a Activities) LogListen(ctx context.Context, userID, songID string) (*model.Activity, error) {
	activity, err := a.ActivityRepository.LogListen(ctx, userID, songID)
	if err != nil {
		return nil, err
	}
	a.Emitter.Emit(ctx, TypeActivityLogged, userID, activity)
	return activity, nil
}
