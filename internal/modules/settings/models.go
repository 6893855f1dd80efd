package settings

const (
	KeyAppKey      = "saxo_app_key"
	KeyAppSecret   = "saxo_app_secret"
	KeyRedirectURI = "saxo_redirect_uri"
	KeyTimezone    = "saxo_timezone"
	KeyLogLevel    = "log_level"

	KeyAvailabilityFloor = "availability_floor_minutes"
)

// SettingDefaults holds all default values for configurable settings
var SettingDefaults = map[string]interface{}{
	// Brokerage application credentials
	KeyAppKey:      "",
	KeyAppSecret:   "",
	KeyRedirectURI: "",

	// Market-hours timezone driving the adaptive interval ("any" = fixed interval)
	KeyTimezone: "America/New_York",

	// Sensors stay available this long after the last success (at least 3x the interval)
	KeyAvailabilityFloor: 15.0,

	KeyLogLevel: "info",
}

// StringSettings lists settings stored and returned as strings. Everything
// else is parsed as float64.
var StringSettings = map[string]bool{
	KeyAppKey:      true,
	KeyAppSecret:   true,
	KeyRedirectURI: true,
	KeyTimezone:    true,
	KeyLogLevel:    true,
}

// SecretSettings are redacted in API responses
var SecretSettings = map[string]bool{
	KeyAppSecret: true,
}

// SettingDescriptions holds human-readable descriptions for all settings
var SettingDescriptions = map[string]string{
	KeyAppKey:      "Application key registered with the brokerage developer portal",
	KeyAppSecret:   "Application secret registered with the brokerage developer portal",
	KeyRedirectURI: "OAuth redirect URI registered for the application",
	KeyTimezone:    "Exchange timezone used to detect market hours, or \"any\" for a fixed 15 minute interval",
	KeyLogLevel:    "Log level: debug, info, warn or error",

	KeyAvailabilityFloor: "Minutes sensors stay available after the last successful update",
}

// SettingUpdate represents a setting value update request
type SettingUpdate struct {
	Value interface{} `json:"value"`
}

// RedactedValue replaces secret values in API responses
const RedactedValue = "********"
