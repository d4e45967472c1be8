package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"Tunehub/model"
	"Tunehub/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryPublisher struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (p *memoryPublisher) Publish(ctx context.Context, rec Record) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.records = append(p.records, rec)
	return nil
}

func (p *memoryPublisher) Close() error { return nil }

func (p *memoryPublisher) events(t *testing.T) []Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.records))
	for i, r := range p.records {
		require.NoError(t, json.Unmarshal(r.Value, &out[i]))
		assert.Equal(t, out[i].Key, r.Key)
		assert.Equal(t, out[i].Type, r.Type)
	}
	return out
}

func fixedEmitter(pub Publisher) *Emitter {
	e := NewEmitter(pub)
	e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return e
}

func TestPresenceEvents(t *testing.T) {
	pub := &memoryPublisher{}
	e := fixedEmitter(pub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // a finished request must not stop the publish
	e.Online(ctx, "user_1")
	e.ActivityChanged(ctx, "user_1", "Playing X by Y")
	e.Offline(ctx, "user_1")

	got := pub.events(t)
	require.Len(t, got, 3)
	assert.Equal(t, TypeUserOnline, got[0].Type)
	assert.Equal(t, TypeActivityChanged, got[1].Type)
	assert.Equal(t, map[string]interface{}{"userId": "user_1", "activity": "Playing X by Y"}, got[1].Data)
	assert.Equal(t, TypeUserOffline, got[2].Type)
	assert.Equal(t, "user_1", got[2].Key)
	assert.True(t, got[0].OccurredAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestNilEmitterAndPublishFailure(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() { e.Online(context.Background(), "user_1") })

	pub := &memoryPublisher{err: errors.New("broker down")}
	assert.NotPanics(t, func() { fixedEmitter(pub).Offline(context.Background(), "user_1") })
}

type stubMessages struct {
	repository.MessageRepository
	err error
}

func (s stubMessages) CreateMessage(_ context.Context, msg *model.Message) error {
	if s.err != nil {
		return s.err
	}
	msg.ID = "m1"
	return nil
}

func TestMessagesDecorator(t *testing.T) {
	pub := &memoryPublisher{}
	repo := Messages{MessageRepository: stubMessages{}, Emitter: fixedEmitter(pub)}

	msg := &model.Message{Sender: "id-a", Receiver: "id-b", Content: "hi"}
	require.NoError(t, repo.CreateMessage(context.Background(), msg))

	got := pub.events(t)
	require.Len(t, got, 1)
	assert.Equal(t, TypeMessageCreated, got[0].Type)
	assert.Equal(t, "id-b", got[0].Key)

	failing := Messages{MessageRepository: stubMessages{err: errors.New("db down")}, Emitter: fixedEmitter(pub)}
	assert.Error(t, failing.CreateMessage(context.Background(), &model.Message{}))
	assert.Len(t, pub.events(t), 1, "failed writes are not published")
}

type stubActivities struct {
	repository.ActivityRepository
}

func (stubActivities) LogListen(_ context.Context, userID, songID string) (*model.Activity, error) {
	return &model.Activity{Type: model.ActivityListenedToSong, UserID: userID, SongID: songID}, nil
}

func TestActivitiesDecorator(t *testing.T) {
	pub := &memoryPublisher{}
	repo := Activities{ActivityRepository: stubActivities{}, Emitter: fixedEmitter(pub)}

	activity, err := repo.LogListen(context.Background(), "id-a", "song-1")
	require.NoError(t, err)
	assert.Equal(t, "song-1", activity.SongID)

	got := pub.events(t)
	require.Len(t, got, 1)
	assert.Equal(t, TypeActivityLogged, got[0].Type)
	assert.Equal(t, "id-a", got[0].Key)
}
