package config

// BookingConfig holds booking rules that are a deployment choice.
type BookingConfig struct {
	// ClosureConflictPolicy is "cancel" (default) or "notify".
	ClosureConflictPolicy string
}

func LoadBookingConfig() BookingConfig {
	return BookingConfig{
		ClosureConflictPolicy: envStr("CLOSURE_CONFLICT_POLICY", "cancel"),
	}
}
