package storage

import (
	"strings"
	"testing"
	"time"

	"Tunehub/config"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey(PrefixAudio, "My Song.MP3")
	assert.True(t, strings.HasPrefix(key, "songs/audio/"), key)
	assert.True(t, strings.HasSuffix(key, ".mp3"), key)
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(key, "songs/audio/"), ".mp3"), 36)

	assert.NotEqual(t, key, ObjectKey(PrefixAudio, "My Song.MP3"))
	assert.True(t, strings.HasPrefix(ObjectKey("/images/", "cover"), "images/"))
}

func TestPublicBaseURL(t *testing.T) {
	cfg := &config.Config{MinioEndpoint: "127.0.0.1:9000", MinioBucket: "tunehub"}
	assert.Equal(t, "http://127.0.0.1:9000/tunehub", PublicBaseURL(cfg))

	cfg.MinioUseSSL = true
	assert.Equal(t, "https://127.0.0.1:9000/tunehub", PublicBaseURL(cfg))

	cfg.MinioPublicURL = "https://cdn.example.com/assets/"
	assert.Equal(t, "https://cdn.example.com/assets", PublicBaseURL(cfg))
}

func TestURL(t *testing.T) {
	s := &AssetStore{publicURL: "http://cdn/tunehub"}
	assert.Equal(t, "http://cdn/tunehub/images/a.png", s.URL("/images/a.png"))
}

func TestSummarize(t *testing.T) {
	newest := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	stats := Summarize([]ObjectInfo{
		{Key: "songs/audio/a.mp3", Size: 3000},
		{Key: "images/a.jpg", Size: 200, LastModified: newest},
		{Key: "images/b.PNG", Size: 100},
		{Key: "notes.txt", Size: 7},
	})

	assert.Equal(t, int64(4), stats.TotalObjects)
	assert.Equal(t, int64(3307), stats.TotalSize)
	assert.Equal(t, newest, stats.LastModified)
	assert.Equal(t, map[string]int64{"audio": 3000, "image": 300, "other": 7}, stats.ByKind)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2.0 MB", FormatSize(2*1024*1024))
}
