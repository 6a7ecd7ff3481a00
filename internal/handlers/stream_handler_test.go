package handlers

import (
	"bufio"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilsnap/backend/internal/config"
	"github.com/skilsnap/backend/internal/feed"
	"github.com/skilsnap/backend/internal/services"
)

var feedWindowColumns = []string{"id", "user_id", "title", "skill_tag", "video_url", "thumbnail_url", "creator_name", "likes", "tips", "version", "created_at", "updated_at"}

var profileRowColumns = []string{"user_id", "name", "skill_tag", "location", "v_coins", "is_guru", "version", "created_at", "updated_at"}

func newStreamFixture(t *testing.T) (*StreamHandler, sqlmock.Sqlmock, *feed.Hub) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.AppConfig{
		TipCreditAmount:  10,
		HireLeadCost:     50,
		FeedDefaultLimit: 50,
		FeedMaxLimit:     100,
		TipRetryAttempts: 3,
	}
	hub := feed.NewHub()
	ledger := services.NewCoinLedgerService(db, hub, cfg)
	videos := services.NewVideoService(db, hub, ledger, cfg)
	profiles := services.NewProfileService(db, hub)
	return NewStreamHandler(hub, videos, profiles), mock, hub
}

// nextSSEEvent reads frames until a complete event arrives, skipping
// heartbeat comments.
func nextSSEEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()

	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err, "stream ended before a full event arrived")
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" || data != "" {
				return event, data
			}
		case strings.HasPrefix(line, ":"):
			// heartbeat comment
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func openStream(t *testing.T, url string) *bufio.Reader {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func TestStreamHandler_FeedStream(t *testing.T) {
	handler, mock, hub := newStreamFixture(t)

	base := time.Now()
	// Initial snapshot: the two newest videos fill the limit-2 window.
	mock.ExpectQuery("SELECT id, user_id, title").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(feedWindowColumns).
			AddRow("v3", "42", "Fixing a leaky trap", "plumbing", "https://cdn.example.com/v3.mp4", "", "Ravi", 3, 1, 1, base.Add(2*time.Second), base.Add(2*time.Second)).
			AddRow("v2", "42", "Soldering copper pipe", "plumbing", "https://cdn.example.com/v2.mp4", "", "Ravi", 5, 2, 1, base.Add(time.Second), base.Add(time.Second)))
	// After the publish the refreshed window holds the newcomer and the
	// oldest video falls out.
	mock.ExpectQuery("SELECT id, user_id, title").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(feedWindowColumns).
			AddRow("v4", "42", "Unblocking a drain", "plumbing", "https://cdn.example.com/v4.mp4", "", "Ravi", 0, 0, 1, base.Add(3*time.Second), base.Add(3*time.Second)).
			AddRow("v3", "42", "Fixing a leaky trap", "plumbing", "https://cdn.example.com/v3.mp4", "", "Ravi", 3, 1, 1, base.Add(2*time.Second), base.Add(2*time.Second)))

	router := chi.NewRouter()
	router.Get("/feed/stream", handler.FeedStream)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	reader := openStream(t, server.URL+"/feed/stream?limit=2")

	event, data := nextSSEEvent(t, reader)
	assert.Equal(t, "feed", event)
	assert.Contains(t, data, `"v3"`)
	assert.Contains(t, data, `"v2"`)
	assert.Contains(t, data, `"count":2`)

	hub.Publish(feed.TopicFeed, feed.KindVideoCreated, "v4")

	event, data = nextSSEEvent(t, reader)
	assert.Equal(t, "feed", event)
	assert.Contains(t, data, `"v4"`)
	assert.Contains(t, data, `"v3"`)
	assert.NotContains(t, data, `"v2"`)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamHandler_ProfileStream(t *testing.T) {
	handler, mock, hub := newStreamFixture(t)

	// The profile does not exist yet; the initial event must say so rather
	// than fail the stream.
	mock.ExpectQuery("SELECT user_id, name").
		WithArgs("77").
		WillReturnError(sql.ErrNoRows)
	now := time.Now()
	mock.ExpectQuery("SELECT user_id, name").
		WithArgs("77").
		WillReturnRows(sqlmock.NewRows(profileRowColumns).
			AddRow("77", "Meena", "gardening", "Pune", 0, false, 1, now, now))

	router := chi.NewRouter()
	router.Get("/profiles/{userId}/stream", handler.ProfileStream)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	reader := openStream(t, server.URL+"/profiles/77/stream")

	event, data := nextSSEEvent(t, reader)
	assert.Equal(t, "profile", event)
	assert.Equal(t, `{"exists":false}`, data)

	hub.Publish(feed.ProfileTopic("77"), feed.KindProfileCreated, "77")

	event, data = nextSSEEvent(t, reader)
	assert.Equal(t, "profile", event)
	assert.Contains(t, data, `"exists":true`)
	assert.Contains(t, data, `"Meena"`)

	assert.NoError(t, mock.ExpectationsWereMet())
}
