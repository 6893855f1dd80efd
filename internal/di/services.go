package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/saxo-portfolio/internal/clients/saxo"
	"github.com/aristath/saxo-portfolio/internal/config"
	"github.com/aristath/saxo-portfolio/internal/coordinator"
	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/aristath/saxo-portfolio/internal/events"
	"github.com/aristath/saxo-portfolio/internal/modules/settings"
	"github.com/aristath/saxo-portfolio/internal/oauth"
	"github.com/aristath/saxo-portfolio/internal/ratelimit"
	"github.com/aristath/saxo-portfolio/internal/scheduler"
	"github.com/rs/zerolog"
)

// PollJobName identifies the portfolio poll in the scheduler
const PollJobName = "poll_portfolio"

// InitializeServices creates the token manager, the API client factory and
// the polling engine. The poll job is created here because the engine
// reschedules it whenever the update interval changes.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.SettingsService = settings.NewService(container.SettingsRepo, log)

	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	creds := oauth.Credentials{
		AppKey:      cfg.AppKey,
		AppSecret:   cfg.AppSecret,
		RedirectURI: cfg.RedirectURI,
	}

	var managerOpts []oauth.Option
	if cfg.TokenURL != "" {
		managerOpts = append(managerOpts, oauth.WithTokenURL(cfg.TokenURL))
	}
	container.TokenManager = oauth.NewManager(container.TokenStore, creds, log, managerOpts...)
	if err := container.TokenManager.Load(context.Background()); err != nil {
		return fmt.Errorf("failed to load stored token: %w", err)
	}

	container.Exchanger = oauth.NewExchanger(creds, log)
	if cfg.AuthorizeURL != "" || cfg.TokenURL != "" {
		container.Exchanger.SetEndpoints(
			valueOr(cfg.AuthorizeURL, oauth.DefaultAuthorizeURL),
			valueOr(cfg.TokenURL, oauth.DefaultTokenURL),
		)
	}

	container.Limiter = ratelimit.New(log)

	var clientOpts []saxo.Option
	if cfg.APIBaseURL != "" {
		clientOpts = append(clientOpts, saxo.WithBaseURL(cfg.APIBaseURL))
	}
	limiter := container.Limiter
	factory := func(accessToken string, generation uint64) domain.BrokerClient {
		return saxo.NewClient(accessToken, generation, limiter, log, clientOpts...)
	}

	floorMinutes, err := container.SettingsRepo.GetFloat(settings.KeyAvailabilityFloor, settings.SettingDefaults[settings.KeyAvailabilityFloor].(float64))
	if err != nil {
		return fmt.Errorf("failed to read availability floor: %w", err)
	}

	container.Scheduler = scheduler.New(log)
	pollJob := scheduler.NewFuncJob(PollJobName, func() error {
		return container.Coordinator.Poll(context.Background())
	})
	sched := container.Scheduler

	coord, err := coordinator.New(
		container.TokenManager,
		factory,
		coordinator.Config{
			Timezone:          cfg.Timezone,
			AvailabilityFloor: time.Duration(floorMinutes * float64(time.Minute)),
		},
		log,
		coordinator.WithEvents(container.EventManager),
		coordinator.WithIntervalHook(func(interval time.Duration) {
			if _, err := sched.Schedule(pollJob, interval); err != nil {
				log.Error().Err(err).Dur("interval", interval).Msg("Failed to reschedule poll")
			}
		}),
		coordinator.WithReloadFunc(func() {
			log.Info().Msg("Recreating sensors with resolved client identity")
			container.Coordinator.MarkSensorsReady()
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	container.Coordinator = coord
	container.pollJob = pollJob

	log.Info().
		Str("timezone", cfg.Timezone).
		Dur("update_interval", coord.UpdateInterval()).
		Str("token_state", string(container.TokenManager.State())).
		Msg("Services initialized")

	return nil
}

func valueOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
