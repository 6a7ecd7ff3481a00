package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/skilsnap/backend/internal/feed"
	"github.com/skilsnap/backend/internal/models"
)

func newProfileService(t *testing.T) (*ProfileService, sqlmock.Sqlmock, *feed.Hub) {
	t.Helper()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := feed.NewHub()
	return NewProfileService(db, hub), mock, hub
}

var profileColumns = []string{"user_id", "name", "skill_tag", "location", "v_coins", "is_guru", "version", "created_at", "updated_at"}

func TestProfileService_GetMyProfile(t *testing.T) {
	t.Run("existing profile is returned as-is", func(t *testing.T) {
		service, mock, _ := newProfileService(t)

		now := time.Now()
		mock.ExpectQuery("SELECT user_id, name, skill_tag, location, v_coins, is_guru").
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows(profileColumns).
				AddRow("42", "Ravi", "plumbing", "Pune", 120, true, 3, now, now))

		r := withUser(httptest.NewRequest("GET", "/profiles/me", nil), "42")
		w := httptest.NewRecorder()

		service.GetMyProfile(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var profile models.Profile
		json.Unmarshal(w.Body.Bytes(), &profile)
		assert.Equal(t, "42", profile.UserID)
		assert.Equal(t, int64(120), profile.VCoins)
		assert.True(t, profile.IsGuru)
	})

	t.Run("first access creates an empty profile with zero balance", func(t *testing.T) {
		service, mock, hub := newProfileService(t)

		profileEvents, cancel := hub.Subscribe(feed.ProfileTopic("42"))
		defer cancel()

		mock.ExpectQuery("SELECT user_id, name, skill_tag, location, v_coins, is_guru").
			WithArgs("42").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO profiles").
			WillReturnResult(sqlmock.NewResult(1, 1))

		r := withUser(httptest.NewRequest("GET", "/profiles/me", nil), "42")
		w := httptest.NewRecorder()

		service.GetMyProfile(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var profile models.Profile
		json.Unmarshal(w.Body.Bytes(), &profile)
		assert.Equal(t, "42", profile.UserID)
		assert.Equal(t, int64(0), profile.VCoins)
		assert.False(t, profile.IsGuru)

		select {
		case event := <-profileEvents:
			assert.Equal(t, feed.KindProfileCreated, event.Kind)
		case <-time.After(time.Second):
			t.Fatal("expected a profile event for lazy creation")
		}
	})

	t.Run("losing the creation race returns the winner's profile", func(t *testing.T) {
		service, mock, _ := newProfileService(t)

		now := time.Now()
		mock.ExpectQuery("SELECT user_id, name, skill_tag, location, v_coins, is_guru").
			WithArgs("42").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO profiles").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT user_id, name, skill_tag, location, v_coins, is_guru").
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows(profileColumns).
				AddRow("42", "Ravi", "", "", 0, false, 1, now, now))

		r := withUser(httptest.NewRequest("GET", "/profiles/me", nil), "42")
		w := httptest.NewRecorder()

		service.GetMyProfile(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var profile models.Profile
		json.Unmarshal(w.Body.Bytes(), &profile)
		assert.Equal(t, "Ravi", profile.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProfileService_CreateProfile(t *testing.T) {
	t.Run("creates with provided fields and zero balance", func(t *testing.T) {
		service, mock, _ := newProfileService(t)

		mock.ExpectExec("INSERT INTO profiles").
			WithArgs("42", "Ravi", "plumbing", "Pune", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		isGuru := true
		body, _ := json.Marshal(models.ProfileUpdateRequest{
			Name:     "Ravi",
			SkillTag: "plumbing",
			Location: "Pune",
			IsGuru:   &isGuru,
		})
		r := withUser(httptest.NewRequest("POST", "/profiles", bytes.NewBuffer(body)), "42")
		w := httptest.NewRecorder()

		service.CreateProfile(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		var profile models.Profile
		json.Unmarshal(w.Body.Bytes(), &profile)
		assert.Equal(t, int64(0), profile.VCoins)
		assert.True(t, profile.IsGuru)
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		service, mock, _ := newProfileService(t)

		mock.ExpectExec("INSERT INTO profiles").
			WillReturnResult(sqlmock.NewResult(0, 0))

		body, _ := json.Marshal(models.ProfileUpdateRequest{Name: "Ravi"})
		r := withUser(httptest.NewRequest("POST", "/profiles", bytes.NewBuffer(body)), "42")
		w := httptest.NewRecorder()

		service.CreateProfile(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestProfileService_GetProfile(t *testing.T) {
	service, mock, _ := newProfileService(t)

	t.Run("missing profile returns 404", func(t *testing.T) {
		mock.ExpectQuery("SELECT user_id, name, skill_tag, location, v_coins, is_guru").
			WithArgs("99").
			WillReturnError(sql.ErrNoRows)

		router := chi.NewRouter()
		router.Get("/profiles/{userId}", service.GetProfile)

		req := httptest.NewRequest("GET", "/profiles/99", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestProfileService_UpdateProfile(t *testing.T) {
	t.Run("merges provided fields and bumps the version", func(t *testing.T) {
		service, mock, hub := newProfileService(t)

		profileEvents, cancel := hub.Subscribe(feed.ProfileTopic("42"))
		defer cancel()

		now := time.Now()
		mock.ExpectQuery("SELECT user_id, name, skill_tag, location, v_coins, is_guru").
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows(profileColumns).
				AddRow("42", "Ravi", "plumbing", "Pune", 120, false, 3, now, now))
		mock.ExpectExec("UPDATE profiles").
			WithArgs("Ravi", "welding", "Pune", false, sqlmock.AnyArg(), "42", 3).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(models.ProfileUpdateRequest{SkillTag: "welding"})
		r := withUser(httptest.NewRequest("PUT", "/profiles/me", bytes.NewBuffer(body)), "42")
		w := httptest.NewRecorder()

		service.UpdateProfile(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var profile models.Profile
		json.Unmarshal(w.Body.Bytes(), &profile)
		assert.Equal(t, "welding", profile.SkillTag)
		assert.Equal(t, "Ravi", profile.Name)
		assert.Equal(t, 4, profile.Version)
		assert.Equal(t, int64(120), profile.VCoins)

		select {
		case event := <-profileEvents:
			assert.Equal(t, feed.KindProfileUpdated, event.Kind)
		case <-time.After(time.Second):
			t.Fatal("expected a profile event after update")
		}
	})

	t.Run("retries when a concurrent writer bumps the version first", func(t *testing.T) {
		service, mock, _ := newProfileService(t)

		now := time.Now()
		// First attempt loses the race: the version moved from 3 to 4
		// between the read and the write.
		mock.ExpectQuery("SELECT user_id, name, skill_tag, location, v_coins, is_guru").
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows(profileColumns).
				AddRow("42", "Ravi", "plumbing", "Pune", 120, false, 3, now, now))
		mock.ExpectExec("UPDATE profiles").
			WithArgs("Ravi", "welding", "Pune", false, sqlmock.AnyArg(), "42", 3).
			WillReturnResult(sqlmock.NewResult(0, 0))
		// The retry re-reads the winner and succeeds against version 4.
		mock.ExpectQuery("SELECT user_id, name, skill_tag, location, v_coins, is_guru").
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows(profileColumns).
				AddRow("42", "Ravi", "plumbing", "Pune", 130, false, 4, now, now))
		mock.ExpectExec("UPDATE profiles").
			WithArgs("Ravi", "welding", "Pune", false, sqlmock.AnyArg(), "42", 4).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(models.ProfileUpdateRequest{SkillTag: "welding"})
		r := withUser(httptest.NewRequest("PUT", "/profiles/me", bytes.NewBuffer(body)), "42")
		w := httptest.NewRecorder()

		service.UpdateProfile(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var profile models.Profile
		json.Unmarshal(w.Body.Bytes(), &profile)
		assert.Equal(t, 5, profile.Version)
		assert.Equal(t, int64(130), profile.VCoins)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing profile returns 404", func(t *testing.T) {
		service, mock, _ := newProfileService(t)

		mock.ExpectQuery("SELECT user_id, name, skill_tag, location, v_coins, is_guru").
			WithArgs("42").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(models.ProfileUpdateRequest{SkillTag: "welding"})
		r := withUser(httptest.NewRequest("PUT", "/profiles/me", bytes.NewBuffer(body)), "42")
		w := httptest.NewRecorder()

		service.UpdateProfile(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
