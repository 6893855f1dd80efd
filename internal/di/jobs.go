package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/aristath/saxo-portfolio/internal/oauth"
	"github.com/aristath/saxo-portfolio/internal/scheduler"
	"github.com/rs/zerolog"
)

const (
	tokenKeepAliveSchedule = "@every 1m"
	walCheckpointSchedule  = "0 0 * * * *" // hourly
	tokenKeepAliveTimeout  = 30 * time.Second
)

// RegisterJobs schedules the poll at the engine's current interval and adds
// the maintenance jobs. The scheduler is not started.
func RegisterJobs(container *Container, log zerolog.Logger) (*JobInstances, error) {
	instances := &JobInstances{Poll: container.pollJob}

	if _, err := container.Scheduler.Schedule(container.pollJob, container.Coordinator.UpdateInterval()); err != nil {
		return nil, fmt.Errorf("failed to schedule poll: %w", err)
	}

	// Keeps both tokens fresh between polls when the interval is long
	manager := container.TokenManager
	instances.TokenKeepAlive = scheduler.NewFuncJob("token_keepalive", func() error {
		if manager.Token().IsZero() || manager.State() == oauth.StateExpired {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), tokenKeepAliveTimeout)
		defer cancel()
		return manager.EnsureValid(ctx)
	})
	if err := container.Scheduler.AddJob(tokenKeepAliveSchedule, instances.TokenKeepAlive); err != nil {
		return nil, err
	}

	instances.WALCheckpoint = scheduler.NewCheckWALCheckpointsJob(container.DB, log)
	if err := container.Scheduler.AddJob(walCheckpointSchedule, instances.WALCheckpoint); err != nil {
		return nil, err
	}

	log.Info().Int("jobs", 3).Msg("Jobs registered")
	return instances, nil
}

// RunInitialPoll performs the first poll and completes setup. Sensors are
// marked ready when the client identity is already known; otherwise the
// engine requests a reload once the identity arrives.
func RunInitialPoll(container *Container, log zerolog.Logger) {
	if err := container.Scheduler.RunNow(container.pollJob); err != nil {
		log.Warn().
			Err(err).
			Str("kind", string(domain.KindOf(err))).
			Msg("Initial poll failed, continuing with scheduled polls")
	}

	coord := container.Coordinator
	coord.MarkSetupComplete()
	if coord.ClientName() != domain.UnknownClientName {
		coord.MarkSensorsReady()
	}

	log.Info().
		Str("client_name", coord.ClientName()).
		Str("sensors", string(coord.Lifecycle().Sensors)).
		Msg("Setup complete")
}
