package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VideosProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emotionplayer_videos_processed_total",
		Help: "Total number of videos run through the pipeline, by outcome",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "emotionplayer_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"pass", "stage"})

	FramesSampledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emotionplayer_frames_sampled_total",
		Help: "Total number of frames decoded into tensors",
	}, []string{"pass"})

	FrameDecodeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emotionplayer_frame_decode_failures_total",
		Help: "Sampled frames that failed to decode and were left zeroed",
	}, []string{"pass"})

	ChunkFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emotionplayer_chunk_failures_total",
		Help: "Inference chunks whose engine call failed or panicked",
	})

	ActiveChunks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "emotionplayer_active_chunks",
		Help: "Number of inference chunks currently running",
	})

	DarkFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emotionplayer_dark_frames_total",
		Help: "Filter predictions masked because the frame was too dark",
	})

	RatingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emotionplayer_ratings_total",
		Help: "Classification outcomes, by rating or status",
	}, []string{"rating"})
)
