package di

import (
	"fmt"

	"github.com/aristath/saxo-portfolio/internal/config"
	"github.com/aristath/saxo-portfolio/internal/modules/settings"
	"github.com/aristath/saxo-portfolio/internal/oauth"
	"github.com/rs/zerolog"
)

// CredentialRefresher re-reads the application credentials from settings
// and hands them to the token manager and the code exchanger.
// Empty settings fall back to the environment values.
type CredentialRefresher struct {
	repo      *settings.Repository
	cfg       *config.Config
	manager   *oauth.Manager
	exchanger *oauth.Exchanger
	log       zerolog.Logger
}

// NewCredentialRefresher creates the settings handler adapter
func NewCredentialRefresher(container *Container, cfg *config.Config, log zerolog.Logger) *CredentialRefresher {
	return &CredentialRefresher{
		repo:      container.SettingsRepo,
		cfg:       cfg,
		manager:   container.TokenManager,
		exchanger: container.Exchanger,
		log:       log.With().Str("component", "credential_refresher").Logger(),
	}
}

// RefreshCredentials implements settings handlers.CredentialRefresher
func (r *CredentialRefresher) RefreshCredentials() error {
	appKey, err := r.repo.GetString(settings.KeyAppKey, r.cfg.AppKey)
	if err != nil {
		return fmt.Errorf("failed to read app key: %w", err)
	}
	appSecret, err := r.repo.GetString(settings.KeyAppSecret, r.cfg.AppSecret)
	if err != nil {
		return fmt.Errorf("failed to read app secret: %w", err)
	}
	redirectURI, err := r.repo.GetString(settings.KeyRedirectURI, r.cfg.RedirectURI)
	if err != nil {
		return fmt.Errorf("failed to read redirect uri: %w", err)
	}

	creds := oauth.Credentials{
		AppKey:      appKey,
		AppSecret:   appSecret,
		RedirectURI: redirectURI,
	}
	r.manager.SetCredentials(creds)
	r.exchanger.SetCredentials(creds)

	r.log.Info().
		Bool("app_key_set", creds.AppKey != "").
		Bool("app_secret_set", creds.AppSecret != "").
		Msg("Application credentials updated")
	return nil
}
