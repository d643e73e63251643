package services

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/internal/database"
	"github.com/temcen/tripwise/internal/ml"
)

type healthCheck struct {
	name     string
	critical bool
	check    func(ctx context.Context) error
}

type HealthService struct {
	logger    *logrus.Logger
	db        *database.Database
	snapshots SnapshotProvider
	registry  *ml.ModelRegistry
	checks    []healthCheck

	// Prometheus metrics
	healthCheckStatus   *prometheus.GaugeVec
	lastHealthCheck     *prometheus.GaugeVec
	systemMetrics       *prometheus.GaugeVec
	dbConnectionMetrics *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]string      `json:"services"`
	Critical    []string               `json:"critical_failures,omitempty"`
	NonCritical []string               `json:"non_critical_failures,omitempty"`
	Latency     time.Duration          `json:"latency,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// NewHealthService checks PostgreSQL and the reference snapshot as critical
// dependencies. Redis and Neo4j are checked only when connected.
func NewHealthService(logger *logrus.Logger, db *database.Database, snapshots SnapshotProvider, registry *ml.ModelRegistry) *HealthService {
	hs := &HealthService{
		logger:    logger,
		db:        db,
		snapshots: snapshots,
		registry:  registry,
	}

	hs.healthCheckStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"})

	hs.lastHealthCheck = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_timestamp",
		Help: "Timestamp of last health check",
	}, []string{"service"})

	hs.systemMetrics = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "system_info",
		Help: "System information metrics",
	}, []string{"metric_type"})

	hs.dbConnectionMetrics = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "database_connection_pool_usage",
		Help: "Database connection pool usage percentage",
	}, []string{"database", "state"})

	// Ignore metrics that are already registered
	for _, c := range []prometheus.Collector{hs.healthCheckStatus, hs.lastHealthCheck, hs.systemMetrics, hs.dbConnectionMetrics} {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				logger.WithError(err).Warn("Failed to register health metric")
			}
		}
	}

	if db != nil && db.PG != nil {
		hs.addCheck("postgresql", true, func(ctx context.Context) error {
			return db.PG.Ping(ctx)
		})
	}
	hs.addCheck("reference_data", true, hs.checkReferenceData)
	if db != nil && db.Redis != nil && db.Redis.Hot != nil {
		hs.addCheck("redis_hot", false, func(ctx context.Context) error {
			return db.Redis.Hot.Ping(ctx).Err()
		})
	}
	if db != nil && db.Redis != nil && db.Redis.Warm != nil {
		hs.addCheck("redis_warm", false, func(ctx context.Context) error {
			return db.Redis.Warm.Ping(ctx).Err()
		})
	}
	if db != nil && db.Neo4j != nil {
		hs.addCheck("neo4j", false, func(ctx context.Context) error {
			return db.Neo4j.VerifyConnectivity(ctx)
		})
	}

	return hs
}

func (s *HealthService) addCheck(name string, critical bool, check func(ctx context.Context) error) {
	s.checks = append(s.checks, healthCheck{name: name, critical: critical, check: check})
}

// Start collects runtime and pool metrics until ctx is done.
func (s *HealthService) Start(ctx context.Context) {
	go s.collectSystemMetrics(ctx)
	go s.collectDatabaseMetrics(ctx)
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start,
		Services:  make(map[string]string),
		Details:   make(map[string]interface{}),
	}

	allCriticalHealthy := true
	for _, hc := range s.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := hc.check(checkCtx)
		cancel()

		if err == nil {
			status.Services[hc.name] = "healthy"
			s.UpdateHealthMetrics(hc.name, true)
			continue
		}

		status.Services[hc.name] = "unhealthy"
		s.UpdateHealthMetrics(hc.name, false)
		if hc.critical {
			allCriticalHealthy = false
			status.Critical = append(status.Critical, hc.name)
			s.logger.WithError(err).Errorf("Critical service %s is unhealthy", hc.name)
		} else {
			status.NonCritical = append(status.NonCritical, hc.name)
			s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", hc.name)
		}
	}

	if s.snapshots != nil {
		if data := s.snapshots.Current(); data != nil {
			status.Details["snapshot_version"] = data.Version
			status.Details["snapshot_loaded_at"] = data.LoadedAt
			status.Details["catalog_items"] = len(data.Catalog.Items)
		}
	}
	if s.registry != nil {
		status.Details["models"] = s.registry.ListModels()
	}

	switch {
	case !allCriticalHealthy:
		status.Status = "unhealthy"
	case len(status.NonCritical) > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}
	status.Latency = time.Since(start)

	return status
}

func (s *HealthService) checkReferenceData(_ context.Context) error {
	if s.snapshots == nil || s.snapshots.Current() == nil {
		return errors.New("reference data not loaded")
	}
	return nil
}

// collectSystemMetrics collects system-level metrics
func (s *HealthService) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var memStats runtime.MemStats

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		runtime.ReadMemStats(&memStats)

		s.systemMetrics.WithLabelValues("memory_alloc_bytes").Set(float64(memStats.Alloc))
		s.systemMetrics.WithLabelValues("memory_sys_bytes").Set(float64(memStats.Sys))
		s.systemMetrics.WithLabelValues("goroutines_count").Set(float64(runtime.NumGoroutine()))
		s.systemMetrics.WithLabelValues("gc_runs_total").Set(float64(memStats.NumGC))
	}
}

// collectDatabaseMetrics collects database connection metrics
func (s *HealthService) collectDatabaseMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.db == nil || s.db.PG == nil {
			continue
		}
		stats := s.db.PG.Stat()

		s.dbConnectionMetrics.WithLabelValues("postgresql", "acquired_conns").Set(float64(stats.AcquiredConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "idle_conns").Set(float64(stats.IdleConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "max_conns").Set(float64(stats.MaxConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "total_conns").Set(float64(stats.TotalConns()))

		if stats.MaxConns() > 0 {
			usage := float64(stats.AcquiredConns()) / float64(stats.MaxConns()) * 100
			s.dbConnectionMetrics.WithLabelValues("postgresql", "usage_percent").Set(usage)
		}
	}
}

// UpdateHealthMetrics updates health check metrics
func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}
