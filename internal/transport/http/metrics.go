package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	answersAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trivia",
		Name:      "answers_accepted_total",
		Help:      "Answers accepted during a question window.",
	})
	answersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trivia",
		Name:      "answers_rejected_total",
		Help:      "Answers rejected (closed window, duplicates, wrong phase).",
	})
	activeSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trivia",
		Name:      "websocket_connections",
		Help:      "Currently connected websocket clients.",
	})
	eventsRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trivia",
		Name:      "events_relayed_total",
		Help:      "Events pushed to websocket clients (replayed and live).",
	})
)
