package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	joinAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuse",
		Name:      "join_attempts_total",
		Help:      "Join attempts by decision.",
	}, []string{"kind", "result"})

	invitationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuse",
		Name:      "invitation_events_total",
		Help:      "Invitations created, accepted and declined.",
	}, []string{"type", "event"})

	applicationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuse",
		Name:      "application_transitions_total",
		Help:      "Applications entering each status.",
	}, []string{"status"})

	notificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuse",
		Name:      "notification_failures_total",
		Help:      "Notifications that could not be queued or delivered.",
	}, []string{"event"})

	eventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuse",
		Name:      "event_publish_failures_total",
		Help:      "Group events that could not be published.",
	}, []string{"type"})
)
