package membership

// Health is the liveness of a cluster member as reported by the failure detector.
type Health uint8

const (
	// HealthAlive is the health of a member that answers probes.
	HealthAlive Health = iota + 1

	// HealthSuspicious is the health of a member that has missed a probe but
	// has not been confirmed dead yet.
	HealthSuspicious

	// HealthDead is the health of a member confirmed to be unreachable.
	HealthDead

	// HealthLeft is the health of a member that has left the cluster voluntarily.
	HealthLeft
)

// String returns the string representation of the health.
func (h Health) String() string {
	switch h {
	case HealthAlive:
		return "alive"
	case HealthSuspicious:
		return "suspicious"
	case HealthDead:
		return "dead"
	case HealthLeft:
		return "left"
	default:
		return ""
	}
}

// IsAlive returns true if the member in the given state can receive requests.
// Suspicious members are still routable, so that a false suspicion does not
// drain the capacity of a service.
func IsAlive(s *State) bool {
	return s != nil && (s.Health == HealthAlive || s.Health == HealthSuspicious)
}

// IsDead returns true if the member in the given state is absent, confirmed
// dead, or has left the cluster.
func IsDead(s *State) bool {
	return s == nil || s.Health == HealthDead || s.Health == HealthLeft
}
