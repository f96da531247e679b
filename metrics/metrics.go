package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the gameplay counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	PointUnlocks       prometheus.Counter
	AchievementGrants  *prometheus.CounterVec
	ExperienceAwarded  *prometheus.CounterVec
	RaceLost           *prometheus.CounterVec
	MessageLikeToggles *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PointUnlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nomad",
			Name:      "point_unlocks_total",
			Help:      "Map points unlocked.",
		}),
		AchievementGrants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nomad",
			Name:      "achievement_grants_total",
			Help:      "Achievements granted, by code.",
		}, []string{"code"}),
		ExperienceAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nomad",
			Name:      "experience_awarded_total",
			Help:      "Experience points awarded, by source.",
		}, []string{"source"}),
		RaceLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nomad",
			Name:      "race_lost_total",
			Help:      "Inserts that lost a uniqueness race and were treated as no-ops.",
		}, []string{"entity"}),
		MessageLikeToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nomad",
			Name:      "message_likes_total",
			Help:      "Like toggles, by action.",
		}, []string{"action"}),
	}
	if reg != nil {
		reg.MustRegister(m.PointUnlocks, m.AchievementGrants, m.ExperienceAwarded, m.RaceLost, m.MessageLikeToggles)
	}
	return m
}

func (m *Metrics) Unlocked() {
	if m == nil {
		return
	}
	m.PointUnlocks.Inc()
}

func (m *Metrics) Granted(code string) {
	if m == nil {
		return
	}
	m.AchievementGrants.WithLabelValues(code).Inc()
}

func (m *Metrics) Experience(source string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.ExperienceAwarded.WithLabelValues(source).Add(float64(amount))
}

func (m *Metrics) Race(entity string) {
	if m == nil {
		return
	}
	m.RaceLost.WithLabelValues(entity).Inc()
}

func (m *Metrics) Like(action string) {
	if m == nil {
		return
	}
	m.MessageLikeToggles.WithLabelValues(action).Inc()
}
