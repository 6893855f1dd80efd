package settings

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aristath/saxo-portfolio/internal/modules/market_hours"
	"github.com/rs/zerolog"
)

// Service provides settings business logic
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new settings service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "settings").Logger(),
	}
}

// GetAll retrieves all settings with defaults
func (s *Service) GetAll() (map[string]interface{}, error) {
	dbValues, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	result := make(map[string]interface{}, len(SettingDefaults))
	for key, defaultValue := range SettingDefaults {
		dbValue, exists := dbValues[key]
		if !exists {
			result[key] = defaultValue
			continue
		}
		result[key] = parseValue(key, dbValue, defaultValue)
	}

	return result, nil
}

// GetAllRedacted is GetAll with secret values masked
func (s *Service) GetAllRedacted() (map[string]interface{}, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	for key := range SecretSettings {
		if v, ok := all[key].(string); ok && v != "" {
			all[key] = RedactedValue
		}
	}
	return all, nil
}

// Get retrieves a setting value with fallback to default
func (s *Service) Get(key string) (interface{}, error) {
	defaultValue, exists := SettingDefaults[key]
	if !exists {
		return nil, fmt.Errorf("unknown setting: %s", key)
	}

	dbValue, err := s.repo.Get(key)
	if err != nil {
		return nil, err
	}
	if dbValue == nil {
		return defaultValue, nil
	}
	return parseValue(key, *dbValue, defaultValue), nil
}

// Set validates and stores a setting value.
// Returns true if this completes first-time credential setup (key and secret
// both present now, at least one previously empty).
func (s *Service) Set(key string, value interface{}) (bool, error) {
	if _, exists := SettingDefaults[key]; !exists {
		return false, fmt.Errorf("unknown setting: %s", key)
	}

	var str string
	if StringSettings[key] {
		v, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("%s must be a string", key)
		}
		str = strings.TrimSpace(v)
	} else {
		f, ok := value.(float64)
		if !ok {
			return false, fmt.Errorf("%s must be a number", key)
		}
		str = strconv.FormatFloat(f, 'f', -1, 64)
	}

	switch key {
	case KeyTimezone:
		if !market_hours.IsSupported(str) {
			return false, fmt.Errorf("unsupported timezone: %s", str)
		}
	case KeyAvailabilityFloor:
		if f := value.(float64); f <= 0 {
			return false, fmt.Errorf("%s must be positive", key)
		}
	case KeyLogLevel:
		if _, err := zerolog.ParseLevel(str); err != nil || str == "" {
			return false, fmt.Errorf("invalid log level: %s", str)
		}
	}

	isFirstTimeSetup := false
	if key == KeyAppKey || key == KeyAppSecret {
		prevKey, _ := s.repo.Get(KeyAppKey)
		prevSecret, _ := s.repo.Get(KeyAppSecret)
		wasKeyEmpty := prevKey == nil || *prevKey == ""
		wasSecretEmpty := prevSecret == nil || *prevSecret == ""

		nowKey, nowSecret := !wasKeyEmpty, !wasSecretEmpty
		if key == KeyAppKey {
			nowKey = str != ""
		} else {
			nowSecret = str != ""
		}
		isFirstTimeSetup = (wasKeyEmpty || wasSecretEmpty) && nowKey && nowSecret
	}

	description := SettingDescriptions[key]
	if err := s.repo.Set(key, str, &description); err != nil {
		return false, err
	}

	s.log.Info().Str("key", key).Bool("first_time_setup", isFirstTimeSetup).Msg("Setting updated")
	return isFirstTimeSetup, nil
}

func parseValue(key, dbValue string, defaultValue interface{}) interface{} {
	if StringSettings[key] {
		return dbValue
	}
	if floatVal, err := strconv.ParseFloat(dbValue, 64); err == nil {
		return floatVal
	}
	return defaultValue
}
