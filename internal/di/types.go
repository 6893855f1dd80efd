// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/saxo-portfolio/internal/coordinator"
	"github.com/aristath/saxo-portfolio/internal/database"
	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/aristath/saxo-portfolio/internal/events"
	"github.com/aristath/saxo-portfolio/internal/modules/settings"
	"github.com/aristath/saxo-portfolio/internal/oauth"
	"github.com/aristath/saxo-portfolio/internal/ratelimit"
	"github.com/aristath/saxo-portfolio/internal/scheduler"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies
type Container struct {
	// Database holds settings and, with the sqlite backend, the token record
	DB *database.DB

	// Redis is only set when the redis token store is selected
	Redis redis.UniversalClient

	// Repositories
	SettingsRepo *settings.Repository
	TokenStore   domain.TokenStore

	// Services
	SettingsService *settings.Service
	TokenManager    *oauth.Manager
	Exchanger       *oauth.Exchanger
	Limiter         *ratelimit.Limiter
	EventBus        *events.Bus
	EventManager    *events.Manager
	Coordinator     *coordinator.Coordinator
	Scheduler       *scheduler.Scheduler

	pollJob *scheduler.FuncJob
}

// JobInstances holds the registered background jobs
type JobInstances struct {
	Poll           scheduler.Job
	TokenKeepAlive scheduler.Job
	WALCheckpoint  scheduler.Job
}

// Close releases everything the container opened. The engine is closed
// first so a running poll is cancelled before the scheduler waits for it.
func (c *Container) Close() {
	if c.Coordinator != nil {
		c.Coordinator.Close()
	}
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}
