package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fit-portal/placement/modules/internship/domain/capacity"
)

var (
	capacityAdmits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "internship",
		Subsystem: "capacity",
		Name:      "admits_total",
		Help:      "Total number of capacity admits broken down by subject kind and result.",
	}, []string{"kind", "result"})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "internship",
		Name:      "decisions_total",
		Help:      "Total number of reviewer decisions broken down by kind and result.",
	}, []string{"kind", "result"})

	queueCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "internship",
		Subsystem: "queue_cache",
		Name:      "requests_total",
		Help:      "Total number of review queue cache lookups broken down by hit/miss.",
	}, []string{"result"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "internship",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of constraint violations mapped to service errors, by kind.",
	}, []string{"kind"})
)

func recordAdmit(kind capacity.SubjectKind, err error) {
	capacityAdmits.WithLabelValues(string(kind), resultLabel(err)).Inc()
}

func recordDecision(kind string, err error) {
	decisionsTotal.WithLabelValues(kind, resultLabel(err)).Inc()
}

func recordQueueCacheRequest(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	queueCacheRequests.WithLabelValues(result).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	writeConflicts.WithLabelValues(kind).Inc()
}

// resultLabel is "ok" or the lower-cased error code.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch ErrorCode(err) {
	case ErrCapacityExceeded.Code:
		return "capacity_exceeded"
	case ErrNotAccepting.Code:
		return "not_accepting"
	case ErrNotEnrolled.Code:
		return "not_enrolled"
	case ErrPeriodClosed.Code:
		return "period_closed"
	case ErrNotPending.Code:
		return "not_pending"
	case ErrAlreadyDecided.Code:
		return "already_decided"
	case ErrNotFound.Code:
		return "not_found"
	default:
		return "error"
	}
}
