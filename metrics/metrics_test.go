package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/api/songs/featured", http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/songs/featured", http.StatusOK, 30*time.Millisecond)
	m.ObserveRequest(http.MethodPost, "/api/songs/{id}/like", http.StatusUnauthorized, time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPRequestCounter))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequestCounter.WithLabelValues("GET", "/api/songs/featured", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestCounter.WithLabelValues("POST", "/api/songs/{id}/like", "401")))
}

func TestPresenceEvents(t *testing.T) {
	m := New()
	ctx := context.Background()
	m.Online(ctx, "user_1")
	m.Online(ctx, "user_2")
	m.ActivityChanged(ctx, "user_1", "Playing X by Y")
	m.Offline(ctx, "user_2")

	expected := `
		# HELP tunehub_relay_presence_events_total Presence transitions applied by the socket relay
		# TYPE tunehub_relay_presence_events_total counter
		tunehub_relay_presence_events_total{kind="activity"} 1
		tunehub_relay_presence_events_total{kind="offline"} 1
		tunehub_relay_presence_events_total{kind="online"} 2
	`
	assert.NoError(t, testutil.CollectAndCompare(m.RelayPresenceEvents, strings.NewReader(expected)))
}

func TestHandlerExposesOnlineGauge(t *testing.T) {
	m := New()
	online := 3
	m.TrackOnline(func() int { return online })

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tunehub_relay_online_users 3")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
