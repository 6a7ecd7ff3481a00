package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func newSearchServiceWithServer(t *testing.T, handler http.HandlerFunc) *SearchService {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &SearchService{
		client:  server.Client(),
		baseURL: server.URL,
		apiKey:  "test-key",
		apiHost: "test-host",
	}
}

func TestSearchService_FetchVideosBySkill(t *testing.T) {
	t.Run("maps API results to skill-tagged videos", func(t *testing.T) {
		service := newSearchServiceWithServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.Header.Get("X-RapidAPI-Key"))
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{
						"id":                 "abc123",
						"title":              "Fixing a leaky tap",
						"views":              12345,
						"duration_formatted": "6:01",
						"thumbnail":          map[string]any{"url": "https://img/abc123.jpg"},
						"channel":            map[string]any{"name": "Plumb Pro", "icon": "https://img/icon.png"},
					},
				},
			})
		})

		videos := service.FetchVideosBySkill(context.Background(), "plumbing", 10)

		assert.Len(t, videos, 1)
		assert.Equal(t, "abc123", videos[0].ID)
		assert.Equal(t, "plumbing", videos[0].SkillTag)
		assert.Equal(t, "Plumb Pro", videos[0].CreatorName)
		assert.Equal(t, "https://www.youtube.com/embed/abc123", videos[0].VideoURL)
	})

	t.Run("server error falls back to the fixed set filtered by skill", func(t *testing.T) {
		service := newSearchServiceWithServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		videos := service.FetchVideosBySkill(context.Background(), "welding", 10)

		assert.Len(t, videos, 1)
		assert.Equal(t, "demo2", videos[0].ID)
		assert.Equal(t, "welding", videos[0].SkillTag)
	})

	t.Run("unreachable API never surfaces an error", func(t *testing.T) {
		service := &SearchService{
			client:  &http.Client{Timeout: 100 * time.Millisecond},
			baseURL: "http://127.0.0.1:1",
		}

		videos := service.FetchVideosBySkill(context.Background(), "plumbing", 10)

		assert.Len(t, videos, 1)
		assert.Equal(t, "demo1", videos[0].ID)
	})

	t.Run("limit caps the result count", func(t *testing.T) {
		service := newSearchServiceWithServer(t, func(w http.ResponseWriter, r *http.Request) {
			results := make([]map[string]any, 5)
			for i := range results {
				results[i] = map[string]any{"id": "vid", "title": "Tutorial"}
			}
			json.NewEncoder(w).Encode(map[string]any{"results": results})
		})

		videos := service.FetchVideosBySkill(context.Background(), "plumbing", 2)
		assert.Len(t, videos, 2)
	})
}

func TestSearchService_SearchVideos(t *testing.T) {
	t.Run("API failure yields an empty set, not an error", func(t *testing.T) {
		service := newSearchServiceWithServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		videos := service.SearchVideos(context.Background(), "anything", 20)
		assert.Empty(t, videos)
	})

	t.Run("infers the skill tag from the title", func(t *testing.T) {
		service := newSearchServiceWithServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"id": "v1", "title": "Advanced Welding for Gates"},
					{"id": "v2", "title": "Something Unrelated"},
				},
			})
		})

		videos := service.SearchVideos(context.Background(), "gates", 20)

		assert.Len(t, videos, 2)
		assert.Equal(t, "welding", videos[0].SkillTag)
		assert.Equal(t, "tutorial", videos[1].SkillTag)
	})
}

func TestFallbackBySkill(t *testing.T) {
	assert.Len(t, fallbackBySkill(""), len(fallbackVideos))
	assert.Len(t, fallbackBySkill("tutorial"), len(fallbackVideos))

	carpentry := fallbackBySkill("carpentry")
	assert.Len(t, carpentry, 1)
	assert.Equal(t, "demo3", carpentry[0].ID)

	assert.Empty(t, fallbackBySkill("underwater-basket-weaving"))
}

func TestSearchService_Trending(t *testing.T) {
	t.Run("cache miss stores and serves the static list", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		service := &SearchService{redis: redisClient}

		data, _ := json.Marshal(trendingSkills)
		redisMock.ExpectGet("trending_skills").RedisNil()
		redisMock.ExpectSet("trending_skills", data, time.Hour).SetVal("OK")

		r := httptest.NewRequest("GET", "/discover/trending", nil)
		w := httptest.NewRecorder()

		service.Trending(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var skills []map[string]any
		json.Unmarshal(w.Body.Bytes(), &skills)
		assert.Len(t, skills, len(trendingSkills))
	})

	t.Run("cache hit serves the cached payload", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		service := &SearchService{redis: redisClient}

		redisMock.ExpectGet("trending_skills").SetVal(`[{"name":"Plumbing"}]`)

		r := httptest.NewRequest("GET", "/discover/trending", nil)
		w := httptest.NewRecorder()

		service.Trending(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[{"name":"Plumbing"}]`, w.Body.String())
	})

	t.Run("nil redis still serves the list", func(t *testing.T) {
		service := &SearchService{}

		r := httptest.NewRequest("GET", "/discover/trending", nil)
		w := httptest.NewRecorder()

		service.Trending(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
