package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the studio pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	sceneRenders  *prometheus.CounterVec
	renderSeconds prometheus.Histogram
	renderPolls   prometheus.Counter
	batches       *prometheus.CounterVec
	storyboards   *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sceneRenders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_scene_renders_total",
				Help: "Scene renders by outcome (completed, failed, quota, session_invalid).",
			},
			[]string{"outcome"},
		),
		renderSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "studio_scene_render_seconds",
			Help:    "Wall time of one scene render from submit to stored clip.",
			Buckets: []float64{15, 30, 60, 90, 120, 180, 300, 600},
		}),
		renderPolls: f.NewCounter(prometheus.CounterOpts{
			Name: "studio_render_polls_total",
			Help: "Render job status polls.",
		}),
		batches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_batches_total",
				Help: "Finished batch renders by resulting project status.",
			},
			[]string{"status"},
		),
		storyboards: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_storyboards_total",
				Help: "Storyboard generations by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) SceneRendered(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.sceneRenders.WithLabelValues(outcome).Inc()
	m.renderSeconds.Observe(took.Seconds())
}

func (m *Metrics) RenderPolled() {
	if m == nil {
		return
	}
	m.renderPolls.Inc()
}

func (m *Metrics) BatchFinished(status string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(status).Inc()
}

func (m *Metrics) StoryboardGenerated(outcome string) {
	if m == nil {
		return
	}
	m.storyboards.WithLabelValues(outcome).Inc()
}
