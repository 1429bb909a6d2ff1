package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/emotionplayer/internal/pipeline"
	"github.com/keagan/emotionplayer/internal/rating"
	"github.com/keagan/emotionplayer/internal/tensor"
)

func newTestServer(t *testing.T) (*Server, *pipeline.Session) {
	t.Helper()
	session := pipeline.NewSession(zerolog.Nop(), nil)

	pos := tensor.NewPredictions(3, 2)
	pos.Set(0, 0, 0.9)
	pos.Set(0, 1, 0.1)
	pos.Set(1, 0, 0.2)
	pos.Set(1, 1, 0.8)
	pos.Set(2, 0, 0.7)
	pos.Set(2, 1, 0.3)

	session.Add(&pipeline.Result{
		Name:                 "movie",
		Path:                 "/videos/movie.mp4",
		Positiveness:         pos,
		PositivenessInterval: 2,
		DarkFrames:           1,
		State:                pipeline.Done,
		Outcome:              rating.Outcome{Status: rating.Rated, Rating: rating.PG, Score: 0.15},
	})
	session.Add(&pipeline.Result{
		Name:    "broken",
		State:   pipeline.Done,
		Outcome: rating.Outcome{Status: rating.Missing},
		Errors:  []error{errors.New("Positiveness pass: decoder crashed")},
	})

	return New(zerolog.Nop(), session, nil), session
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, session := newTestServer(t)
	rec := get(t, s.Routes(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, session.ID, body.Session)
	assert.Equal(t, 2, body.Videos)
	assert.Equal(t, "idle", body.State)
}

func TestListVideos(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Routes(), "/videos")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []videoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body, 2)

	assert.Equal(t, "movie", body[0].Name)
	assert.Equal(t, "rated", body[0].Status)
	assert.Equal(t, rating.PG, body[0].Rating)
	require.NotNil(t, body[0].Score)
	assert.Equal(t, 0.15, *body[0].Score)
	assert.Equal(t, 3, body[0].Frames)
	assert.Equal(t, 2, body[0].Positive)
	assert.Equal(t, 1, body[0].Negative)

	assert.Equal(t, "missing", body[1].Status)
	assert.Nil(t, body[1].Score)
	assert.Equal(t, []string{"Positiveness pass: decoder crashed"}, body[1].Errors)
}

func TestGetVideo(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()

	rec := get(t, h, "/videos/movie")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rating":"PG"`)

	rec = get(t, h, "/videos/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSentiment(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()

	tests := []struct {
		query string
		want  string
	}{
		{"t=0", "sad"},
		{"t=2.5", "happy"},
		{"t=4", "sad"},
		{"t=999", "sad"},
		{"t=-1", "neutral"},
	}
	for _, tt := range tests {
		rec := get(t, h, "/videos/movie/sentiment?"+tt.query)
		require.Equal(t, http.StatusOK, rec.Code, tt.query)

		var body sentimentResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, tt.want, body.Emotion, tt.query)
	}

	rec := get(t, h, "/videos/broken/sentiment?t=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "neutral")

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/videos/movie/sentiment?t=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/videos/movie/sentiment").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/videos/nope/sentiment?t=1").Code)
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Routes(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/videos", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
