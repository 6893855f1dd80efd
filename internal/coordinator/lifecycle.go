package coordinator

import "github.com/aristath/saxo-portfolio/internal/domain"

// Phase tracks whether initial host setup has completed.
type Phase string

const (
	PhaseStarting Phase = "STARTING"
	PhaseRunning  Phase = "RUNNING"
)

// SensorState tracks whether the host managed to create sensors.
type SensorState string

const (
	SensorsPending SensorState = "SENSORS_PENDING"
	SensorsReady   SensorState = "SENSORS_READY"
)

// Lifecycle is the engine's {Phase} x {SensorState} state plus the
// one-shot reload latch.
type Lifecycle struct {
	Phase           Phase       `json:"phase"`
	Sensors         SensorState `json:"sensors"`
	ReloadScheduled bool        `json:"reload_scheduled"`
}

func newLifecycle() Lifecycle {
	return Lifecycle{Phase: PhaseStarting, Sensors: SensorsPending}
}

// shouldReload reports whether the identity became known after setup
// completed without sensors. Fires at most once per engine.
func (l Lifecycle) shouldReload(previousName, currentName string) bool {
	return !l.ReloadScheduled &&
		l.Phase == PhaseRunning &&
		l.Sensors == SensorsPending &&
		previousName == domain.UnknownClientName &&
		currentName != domain.UnknownClientName
}
