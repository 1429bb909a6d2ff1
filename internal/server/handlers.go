package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keagan/emotionplayer/internal/pipeline"
	"github.com/keagan/emotionplayer/internal/rating"
	"github.com/keagan/emotionplayer/internal/results"
)

type healthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session"`
	Current string `json:"current,omitempty"`
	State   string `json:"state"`
	Videos  int    `json:"videos"`
}

type videoResponse struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	State      string    `json:"state"`
	Status     string    `json:"status"`
	Rating     string    `json:"rating,omitempty"`
	Score      *float64  `json:"score,omitempty"`
	Interval   int       `json:"interval"`
	Frames     int       `json:"frames"`
	Positive   int       `json:"positive"`
	Negative   int       `json:"negative"`
	DarkFrames int       `json:"dark_frames"`
	Errors     []string  `json:"errors,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type sentimentResponse struct {
	Name    string `json:"name"`
	Second  int    `json:"second"`
	Emotion string `json:"emotion"`
}

func toVideoResponse(res *pipeline.Result) videoResponse {
	v := videoResponse{
		Name:       res.Name,
		Path:       res.Path,
		State:      res.State.String(),
		Status:     res.Outcome.Status.String(),
		Rating:     res.Outcome.Rating,
		Interval:   res.PositivenessInterval,
		DarkFrames: res.DarkFrames,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Outcome.Status == rating.Rated && !math.IsNaN(res.Outcome.Score) {
		score := res.Outcome.Score
		v.Score = &score
	}
	if !res.Positiveness.Empty() {
		v.Frames = res.Positiveness.Count
		v.Positive, v.Negative = results.CountSentiment(res.Positiveness)
	}
	for _, err := range res.Errors {
		v.Errors = append(v.Errors, err.Error())
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	current, state := s.session.Current()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Session: s.session.ID,
		Current: current,
		State:   state.String(),
		Videos:  len(s.session.Results()),
	})
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	list := s.session.Results()
	out := make([]videoResponse, 0, len(list))
	for _, res := range list {
		out = append(out, toVideoResponse(res))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	res, ok := s.session.Lookup(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}
	writeJSON(w, http.StatusOK, toVideoResponse(res))
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, ok := s.session.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}

	t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		writeError(w, http.StatusBadRequest, "t must be a number of seconds")
		return
	}

	second := int(math.Floor(t))
	emotion := results.SentimentAt(res.Positiveness, res.PositivenessInterval, second)
	writeJSON(w, http.StatusOK, sentimentResponse{Name: name, Second: second, Emotion: emotion.String()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
