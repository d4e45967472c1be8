package cache

import (
	"context"
	"sort"
	"time"

	"Tunehub/logger"

	"github.com/go-redis/redis/v8"
)

const (
	onlineSetKey    = "tunehub:online"     // Set: 在线用户 externalID
	activityHashKey = "tunehub:activities" // Hash: externalID -> 当前活动
	mirrorTimeout   = time.Second

	idleActivity = "Idle"
)

// PresenceEntry is one row of the mirrored presence.
type PresenceEntry struct {
	ExternalID string
	Activity   string
}

// PresenceMirror copies relay presence into Redis so operators can inspect
// it. The relay never reads it back. Write failures are logged and dropped.
type PresenceMirror struct {
	client *redis.Client
}

// NewPresenceMirror 创建在线状态镜像
func NewPresenceMirror(client *redis.Client) *PresenceMirror {
	return &PresenceMirror{client: client}
}

// Reset clears the mirror. Presence does not survive a restart, so the
// server calls this before accepting connections.
func (m *PresenceMirror) Reset(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Del(ctx, onlineSetKey, activityHashKey).Err()
}

// Online 用户上线
func (m *PresenceMirror) Online(ctx context.Context, externalID string) {
	m.write(ctx, "online", externalID, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SAdd(ctx, onlineSetKey, externalID)
		pipe.HSetNX(ctx, activityHashKey, externalID, idleActivity)
	})
}

// Offline 用户下线
func (m *PresenceMirror) Offline(ctx context.Context, externalID string) {
	m.write(ctx, "offline", externalID, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SRem(ctx, onlineSetKey, externalID)
		pipe.HDel(ctx, activityHashKey, externalID)
	})
}

// ActivityChanged 更新用户活动
func (m *PresenceMirror) ActivityChanged(ctx context.Context, externalID, activity string) {
	m.write(ctx, "activity", externalID, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, activityHashKey, externalID, activity)
	})
}

func (m *PresenceMirror) write(ctx context.Context, op, externalID string, fn func(context.Context, redis.Pipeliner)) {
	if m.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	if _, err := m.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(ctx, pipe)
		return nil
	}); err != nil {
		logger.Warn("failed to mirror presence",
			logger.ErrorField(err),
			logger.String("op", op),
			logger.String("user", externalID))
	}
}

// Dump lists the mirrored presence sorted by external id.
func (m *PresenceMirror) Dump(ctx context.Context) ([]PresenceEntry, error) {
	if m.client == nil {
		return nil, nil
	}
	ids, err := m.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, err
	}
	activities, err := m.client.HGetAll(ctx, activityHashKey).Result()
	if err != nil {
		return nil, err
	}
	return mergePresence(ids, activities), nil
}

func mergePresence(ids []string, activities map[string]string) []PresenceEntry {
	sort.Strings(ids)
	out := make([]PresenceEntry, 0, len(ids))
	for _, id := range ids {
		activity := activities[id]
		if activity == "" {
			activity = idleActivity
		}
		out = append(out, PresenceEntry{ExternalID: id, Activity: activity})
	}
	return out
}
