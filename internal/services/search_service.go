package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skilsnap/backend/internal/models"
	"github.com/spf13/viper"
)

// Skill-based search query phrases.
var skillQueries = map[string]string{
	"plumbing":     "plumbing repair tutorial",
	"welding":      "welding techniques tutorial",
	"carpentry":    "carpentry woodworking tutorial",
	"electrical":   "electrical wiring tutorial",
	"gardening":    "gardening tips tutorial",
	"automotive":   "car repair tutorial",
	"cooking":      "cooking techniques tutorial",
	"painting":     "painting techniques tutorial",
	"construction": "construction techniques tutorial",
	"repair":       "home repair tutorial",
}

// Fixed fallback set substituted when the external API fails.
var fallbackVideos = []models.SearchResult{
	{
		ID:           "demo1",
		Title:        "Professional Plumbing Repair Techniques",
		SkillTag:     "plumbing",
		CreatorName:  "Master Plumber Pro",
		VideoURL:     "https://www.youtube.com/embed/dQw4w9WgXcQ",
		ThumbnailURL: "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq720.jpg",
		Views:        45000,
		Duration:     "8:45",
	},
	{
		ID:           "demo2",
		Title:        "Advanced Welding Techniques for Beginners",
		SkillTag:     "welding",
		CreatorName:  "Weld Master Sarah",
		VideoURL:     "https://www.youtube.com/embed/dQw4w9WgXcQ",
		ThumbnailURL: "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq720.jpg",
		Views:        32000,
		Duration:     "12:30",
	},
	{
		ID:           "demo3",
		Title:        "Carpentry Masterclass: Building Furniture",
		SkillTag:     "carpentry",
		CreatorName:  "Carpenter Mike",
		VideoURL:     "https://www.youtube.com/embed/dQw4w9WgXcQ",
		ThumbnailURL: "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq720.jpg",
		Views:        78000,
		Duration:     "15:20",
	},
}

var trendingSkills = []models.TrendingSkill{
	{Name: "Plumbing", Icon: "wrench", Count: "2.3K videos"},
	{Name: "Welding", Icon: "zap", Count: "1.8K videos"},
	{Name: "Carpentry", Icon: "saw", Count: "3.1K videos"},
	{Name: "Electrical", Icon: "bulb", Count: "1.5K videos"},
	{Name: "Gardening", Icon: "sprout", Count: "2.7K videos"},
	{Name: "Automotive", Icon: "car", Count: "1.9K videos"},
	{Name: "Cooking", Icon: "chef", Count: "4.2K videos"},
	{Name: "Painting", Icon: "palette", Count: "1.2K videos"},
}

// SearchService sources tutorial metadata from the external YouTube search
// API, substituting the fixed fallback set on any request failure. Search is
// delegated entirely to the API; there is no ranking here.
type SearchService struct {
	client  *http.Client
	redis   *redis.Client
	videos  *VideoService
	baseURL string
	apiKey  string
	apiHost string
}

type searchAPIResponse struct {
	Results []searchAPIResult `json:"results"`
}

type searchAPIResult struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Views             int64  `json:"views"`
	DurationFormatted string `json:"duration_formatted"`
	Thumbnail         struct {
		URL string `json:"url"`
	} `json:"thumbnail"`
	Channel struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	} `json:"channel"`
}

func NewSearchService(redisClient *redis.Client, videos *VideoService) *SearchService {
	viper.SetDefault("search.base_url", "https://simple-youtube-search.p.rapidapi.com")
	viper.SetDefault("search.api_host", "simple-youtube-search.p.rapidapi.com")

	return &SearchService{
		client:  &http.Client{Timeout: 10 * time.Second},
		redis:   redisClient,
		videos:  videos,
		baseURL: viper.GetString("search.base_url"),
		apiKey:  viper.GetString("search.api_key"),
		apiHost: viper.GetString("search.api_host"),
	}
}

// FetchVideosBySkill returns up to limit search results for a skill tag.
// Any API failure substitutes the fallback set filtered to the skill; the
// caller never sees an error from this path.
func (ss *SearchService) FetchVideosBySkill(ctx context.Context, skillTag string, limit int) []models.SearchResult {
	query, ok := skillQueries[skillTag]
	if !ok {
		query = skillTag + " tutorial"
	}

	results, err := ss.callSearchAPI(ctx, query)
	if err != nil {
		log.Printf("[SEARCH] External API failed for skill %s, using fallback: %v", skillTag, err)
		return fallbackBySkill(skillTag)
	}

	videos := make([]models.SearchResult, 0, limit)
	for _, r := range results {
		if len(videos) >= limit {
			break
		}
		videos = append(videos, toSearchResult(r, skillTag))
	}
	return videos
}

// SearchVideos runs a free-text query. API failure yields an empty result
// set, never an error.
func (ss *SearchService) SearchVideos(ctx context.Context, query string, limit int) []models.SearchResult {
	results, err := ss.callSearchAPI(ctx, query+" tutorial")
	if err != nil {
		log.Printf("[SEARCH] External API failed for query %q: %v", query, err)
		return []models.SearchResult{}
	}

	videos := make([]models.SearchResult, 0, limit)
	for _, r := range results {
		if len(videos) >= limit {
			break
		}
		videos = append(videos, toSearchResult(r, extractSkillFromTitle(r.Title)))
	}
	return videos
}

// Discover serves skill-tagged tutorial results
// @Summary Discover tutorials by skill
// @Tags discover
// @Produce json
// @Param skill query string false "Skill tag (default: tutorial)"
// @Param limit query int false "Max results (default 10)"
// @Success 200 {object} object{videos=[]models.SearchResult,count=int}
// @Router /discover [get]
func (ss *SearchService) Discover(w http.ResponseWriter, r *http.Request) {
	skillTag := r.URL.Query().Get("skill")
	if skillTag == "" {
		skillTag = "tutorial"
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		fmt.Sscanf(raw, "%d", &limit)
		if limit <= 0 || limit > 50 {
			limit = 10
		}
	}

	videos := ss.FetchVideosBySkill(r.Context(), skillTag, limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"videos": videos,
		"count":  len(videos),
	})
}

// DiscoverSearch serves free-text search results
// @Summary Search tutorials
// @Tags discover
// @Produce json
// @Param q query string true "Search query"
// @Success 200 {object} object{videos=[]models.SearchResult,count=int}
// @Failure 400 {object} ErrorResponse
// @Router /discover/search [get]
func (ss *SearchService) DiscoverSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		SendErrorResponse(w, "q is required", http.StatusBadRequest, nil)
		return
	}

	videos := ss.SearchVideos(r.Context(), query, 20)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"videos": videos,
		"count":  len(videos),
	})
}

// Trending serves the trending skills list
// @Summary Get trending skills
// @Tags discover
// @Produce json
// @Success 200 {array} models.TrendingSkill
// @Router /discover/trending [get]
func (ss *SearchService) Trending(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if ss.redis != nil {
		if cached, err := ss.redis.Get(r.Context(), "trending_skills").Bytes(); err == nil {
			w.Write(cached)
			return
		}
	}

	data, _ := json.Marshal(trendingSkills)
	if ss.redis != nil {
		if err := ss.redis.Set(r.Context(), "trending_skills", data, time.Hour).Err(); err != nil {
			log.Printf("[SEARCH] Failed to cache trending skills: %v", err)
		}
	}
	w.Write(data)
}

// ImportVideo persists an externally sourced tutorial into the catalog
// @Summary Import a tutorial into the catalog
// @Tags discover
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param video body models.CreateVideoRequest true "Video data"
// @Success 201 {object} models.Video
// @Failure 400 {object} ErrorResponse
// @Router /videos/import [post]
func (ss *SearchService) ImportVideo(w http.ResponseWriter, r *http.Request) {
	// Imports go through the same insert path as uploads.
	ss.videos.CreateVideo(w, r)
}

func (ss *SearchService) callSearchAPI(ctx context.Context, query string) ([]searchAPIResult, error) {
	searchURL := fmt.Sprintf("%s/search?query=%s&type=video&safesearch=false",
		ss.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", ss.apiKey)
	req.Header.Set("X-RapidAPI-Host", ss.apiHost)

	resp, err := ss.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("external API returned status %d", resp.StatusCode)
	}

	var result searchAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.Results, nil
}

func toSearchResult(r searchAPIResult, skillTag string) models.SearchResult {
	return models.SearchResult{
		ID:           r.ID,
		Title:        r.Title,
		SkillTag:     skillTag,
		CreatorName:  r.Channel.Name,
		VideoURL:     fmt.Sprintf("https://www.youtube.com/embed/%s", r.ID),
		ThumbnailURL: r.Thumbnail.URL,
		Views:        r.Views,
		Duration:     r.DurationFormatted,
		ChannelIcon:  r.Channel.Icon,
	}
}

func fallbackBySkill(skillTag string) []models.SearchResult {
	if skillTag == "" || skillTag == "mixed" || skillTag == "tutorial" {
		videos := make([]models.SearchResult, len(fallbackVideos))
		copy(videos, fallbackVideos)
		return videos
	}

	videos := []models.SearchResult{}
	for _, v := range fallbackVideos {
		if v.SkillTag == skillTag {
			videos = append(videos, v)
		}
	}
	return videos
}

func extractSkillFromTitle(title string) string {
	titleLower := strings.ToLower(title)
	for skill := range skillQueries {
		if strings.Contains(titleLower, skill) {
			return skill
		}
	}
	return "tutorial"
}
