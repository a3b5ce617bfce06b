package handlers

import (
	"errors"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Metrics registers the gauges read at scrape time and returns the
// Prometheus handler. The service counters register themselves.
func Metrics(db *gorm.DB, hub *services.InboxHub) gin.HandlerFunc {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fuse",
			Name:      "stream_clients",
			Help:      "Open notification streams.",
		}, func() float64 { return float64(hub.ClientCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fuse",
			Name:      "applications_pending",
			Help:      "Applications waiting for a decision.",
		}, func() float64 {
			var n int64
			db.Model(&models.GroupApplication{}).Where("status = ?", models.ApplicationPending).Count(&n)
			return float64(n)
		}),
	}
	if sqlDB, err := db.DB(); err == nil {
		gauges = append(gauges, collectors.NewDBStatsCollector(sqlDB, "fuse"))
	}

	for _, g := range gauges {
		if err := prometheus.Register(g); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
	return gin.WrapH(promhttp.Handler())
}
