package models

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	operationLabel = "operation"
	errTypeLabel   = "error_type"
	queryLabel     = "query"
)

var (
	layerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blobtree_layer_count",
		Help: "The number of layers.",
	})

	entryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blobtree_entry_writes",
		Help: "The number of successful entry writes.",
	}, []string{operationLabel})

	entryWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blobtree_entry_write_errors",
		Help: "The errors that occurred while writing entries.",
	}, []string{
		operationLabel,
		errTypeLabel,
	})

	queryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "blobtree_query_latency",
		Help: "The time to run a query on a layer.",
	}, []string{queryLabel})
)

func instrumentIncreaseLayerGauge() {
	layerCount.Inc()
}

func instrumentDecreaseLayerGauge() {
	layerCount.Dec()
}

func instrumentEntryWrite(operation string, err error) {
	if err != nil {
		entryWriteErrors.
			With(prometheus.Labels{
				operationLabel: operation,
				errTypeLabel:   errors.Type(err),
			}).
			Inc()
		return
	}

	entryWrites.
		With(prometheus.Labels{operationLabel: operation}).
		Inc()
}

func instrumentQueryLatency(kind string, start time.Time) {
	queryLatency.
		With(prometheus.Labels{queryLabel: kind}).
		Observe(time.Since(start).Seconds())
}
