// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/imagegate/internal/account"
	"github.com/carterperez-dev/templates/imagegate/internal/checkout"
	"github.com/carterperez-dev/templates/imagegate/internal/core"
)

type AccountStats interface {
	Stats(ctx context.Context) (account.Stats, error)
}

type UsageStats interface {
	Total(ctx context.Context) (int, error)
}

type CheckoutStats interface {
	CountByStatus(ctx context.Context) ([]checkout.StatusCount, error)
}

type SessionStats interface {
	Count(ctx context.Context) (int, error)
}

type Sweeper interface {
	SweepOnce(ctx context.Context) int
}

type Handler struct {
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
	redisPing  func(ctx context.Context) error
	dbPing     func(ctx context.Context) error
	accounts   AccountStats
	usage      UsageStats
	checkouts  CheckoutStats
	sessions   SessionStats
	sweeper    Sweeper
}

type HandlerConfig struct {
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	RedisPing  func(ctx context.Context) error
	DBPing     func(ctx context.Context) error
	Accounts   AccountStats
	Usage      UsageStats
	Checkouts  CheckoutStats
	Sessions   SessionStats
	Sweeper    Sweeper
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
		redisPing:  cfg.RedisPing,
		dbPing:     cfg.DBPing,
		accounts:   cfg.Accounts,
		usage:      cfg.Usage,
		checkouts:  cfg.Checkouts,
		sessions:   cfg.Sessions,
		sweeper:    cfg.Sweeper,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(adminOnly)

		r.Get("/stats", h.GetSystemStats)
		r.Get("/stats/domain", h.GetDomainStats)
		r.Get("/stats/db", h.GetDatabaseStats)
		r.Get("/stats/redis", h.GetRedisStats)
		r.Get("/stats/runtime", h.GetRuntimeStats)
		r.Post("/checkouts/sweep", h.SweepCheckouts)
	})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	domain, err := h.domainStats(ctx)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, SystemStatsResponse{
		Database: DatabaseStatus{
			Healthy: pingOK(ctx, h.dbPing),
			Stats:   h.getDBStats(),
		},
		Redis: RedisStatus{
			Healthy: pingOK(ctx, h.redisPing),
			Stats:   h.getRedisStats(),
		},
		Runtime: readRuntimeStats(),
		Domain:  domain,
	})
}

func (h *Handler) GetDomainStats(w http.ResponseWriter, r *http.Request) {
	domain, err := h.domainStats(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, domain)
}

func (h *Handler) GetDatabaseStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, h.getDBStats())
}

func (h *Handler) GetRedisStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, h.getRedisStats())
}

func (h *Handler) GetRuntimeStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, readRuntimeStats())
}

func (h *Handler) SweepCheckouts(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		core.NotFound(w, "sweeper")
		return
	}

	core.OK(w, SweepResponse{Canceled: h.sweeper.SweepOnce(r.Context())})
}

func (h *Handler) domainStats(ctx context.Context) (*DomainStats, error) {
	stats := &DomainStats{Checkouts: map[string]int{}}

	if h.accounts != nil {
		accounts, err := h.accounts.Stats(ctx)
		if err != nil {
			return nil, err
		}
		stats.Accounts = accounts.Total
		stats.PaidAccounts = accounts.Paid
	}

	if h.usage != nil {
		total, err := h.usage.Total(ctx)
		if err != nil {
			return nil, err
		}
		stats.UsageRecords = total
	}

	if h.checkouts != nil {
		counts, err := h.checkouts.CountByStatus(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range counts {
			stats.Checkouts[c.Status] = c.Count
		}
	}

	if h.sessions != nil {
		n, err := h.sessions.Count(ctx)
		if err != nil {
			return nil, err
		}
		stats.ActiveSessions = n
	}

	return stats, nil
}

func pingOK(ctx context.Context, ping func(ctx context.Context) error) bool {
	if ping == nil {
		return true
	}
	return ping(ctx) == nil
}

func readRuntimeStats() RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}

type SystemStatsResponse struct {
	Database DatabaseStatus `json:"database"`
	Redis    RedisStatus    `json:"redis"`
	Runtime  RuntimeStats   `json:"runtime"`
	Domain   *DomainStats   `json:"domain"`
}

type DomainStats struct {
	Accounts       int            `json:"accounts"`
	PaidAccounts   int            `json:"paid_accounts"`
	UsageRecords   int            `json:"usage_records"`
	ActiveSessions int            `json:"active_sessions"`
	Checkouts      map[string]int `json:"checkouts"`
}

type SweepResponse struct {
	Canceled int `json:"canceled"`
}

type DatabaseStatus struct {
	Healthy bool         `json:"healthy"`
	Stats   *DBPoolStats `json:"stats,omitempty"`
}

type RedisStatus struct {
	Healthy bool            `json:"healthy"`
	Stats   *RedisPoolStats `json:"stats,omitempty"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
