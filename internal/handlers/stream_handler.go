package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skilsnap/backend/internal/feed"
	"github.com/skilsnap/backend/internal/services"
)

const heartbeatInterval = 15 * time.Second

// StreamHandler serves live feed and profile updates over SSE. Each event
// carries a freshly queried snapshot, so a client always holds the current
// window regardless of which mutation woke it up.
type StreamHandler struct {
	hub      *feed.Hub
	videos   *services.VideoService
	profiles *services.ProfileService
}

func NewStreamHandler(hub *feed.Hub, videos *services.VideoService, profiles *services.ProfileService) *StreamHandler {
	return &StreamHandler{
		hub:      hub,
		videos:   videos,
		profiles: profiles,
	}
}

// FeedStream streams the live video feed window
// @Summary Stream the live feed
// @Description Server-sent events; each event is the refreshed feed window, newest first
// @Tags feed
// @Produce text/event-stream
// @Param limit query int false "Window size (default 50, max 100)"
// @Success 200 {string} string "SSE stream"
// @Router /feed/stream [get]
func (h *StreamHandler) FeedStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	limit := h.videos.ParseFeedLimit(r.URL.Query().Get("limit"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe before the initial snapshot so no mutation lands unseen
	// between the two.
	events, cancel := h.hub.Subscribe(feed.TopicFeed)
	defer cancel()

	log.Printf("[STREAM] Feed subscriber connected from %s (window %d)", r.RemoteAddr, limit)

	if err := h.sendFeedWindow(w, flusher, limit); err != nil {
		log.Printf("[STREAM] Failed to send initial feed window: %v", err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[STREAM] Feed subscriber disconnected: %s", r.RemoteAddr)
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case _, open := <-events:
			if !open {
				return
			}
			if err := h.sendFeedWindow(w, flusher, limit); err != nil {
				log.Printf("[STREAM] Failed to send feed window: %v", err)
				return
			}
		}
	}
}

func (h *StreamHandler) sendFeedWindow(w http.ResponseWriter, flusher http.Flusher, limit int) error {
	videos, err := h.videos.FetchFeedWindow(limit)
	if err != nil {
		return err
	}
	return writeSSE(w, flusher, "feed", map[string]any{
		"videos": videos,
		"count":  len(videos),
	})
}

// ProfileStream streams a single profile document
// @Summary Stream a profile
// @Description Server-sent events; the initial event reports the profile or its absence, later events carry each new state
// @Tags profiles
// @Produce text/event-stream
// @Param userId path string true "Profile user ID"
// @Success 200 {string} string "SSE stream"
// @Router /profiles/{userId}/stream [get]
func (h *StreamHandler) ProfileStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	userID := chi.URLParam(r, "userId")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := h.hub.Subscribe(feed.ProfileTopic(userID))
	defer cancel()

	log.Printf("[STREAM] Profile subscriber connected for %s from %s", userID, r.RemoteAddr)

	if err := h.sendProfile(w, flusher, userID); err != nil {
		log.Printf("[STREAM] Failed to send initial profile %s: %v", userID, err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[STREAM] Profile subscriber disconnected: %s", r.RemoteAddr)
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case _, open := <-events:
			if !open {
				return
			}
			if err := h.sendProfile(w, flusher, userID); err != nil {
				log.Printf("[STREAM] Failed to send profile %s: %v", userID, err)
				return
			}
		}
	}
}

func (h *StreamHandler) sendProfile(w http.ResponseWriter, flusher http.Flusher, userID string) error {
	profile, err := h.profiles.FetchProfile(userID)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			// Absence is a deliverable state, not an error: the client may
			// be waiting for the profile to appear.
			return writeSSE(w, flusher, "profile", map[string]any{
				"exists": false,
			})
		}
		return err
	}
	return writeSSE(w, flusher, "profile", map[string]any{
		"exists":  true,
		"profile": profile,
	})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
