package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the connection pool snapshot returned by the health endpoint.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Pinger is any dependency whose reachability is part of the health report.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler pings the database and every extra dependency. Any failure
// turns the response into 503.
func HealthHandler(pool *pgxpool.Pool, extra map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := map[string]string{"database": "ok"}
		if err := pool.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks["database"] = err.Error()
		}
		for name, p := range extra {
			checks[name] = "ok"
			if err := p.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
			}
		}

		label := "healthy"
		if status != http.StatusOK {
			label = "unhealthy"
		}
		return c.JSON(status, map[string]interface{}{
			"status": label,
			"checks": checks,
			"pool":   GetPoolStats(pool),
		})
	}
}
