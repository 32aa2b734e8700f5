package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	ProviderCall      time.Duration // Bound on one provider call, retries included
	PeeringActive     time.Duration // Wait for a peering link to become active
	Delete            time.Duration // Bound on each delete operation
	RetryMaxAttempts  int           // Maximum number of retry attempts
	RetryInitialDelay time.Duration // Initial delay between retries
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - VPCMESH_TIMEOUT_PROVIDER_CALL (default: 2m)
//   - VPCMESH_TIMEOUT_PEERING_ACTIVE (default: 5m)
//   - VPCMESH_TIMEOUT_DELETE (default: 5m)
//   - VPCMESH_RETRY_MAX_ATTEMPTS (default: 5)
//   - VPCMESH_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		ProviderCall:      parseDuration("VPCMESH_TIMEOUT_PROVIDER_CALL", 2*time.Minute),
		PeeringActive:     parseDuration("VPCMESH_TIMEOUT_PEERING_ACTIVE", 5*time.Minute),
		Delete:            parseDuration("VPCMESH_TIMEOUT_DELETE", 5*time.Minute),
		RetryMaxAttempts:  parseInt("VPCMESH_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay: parseDuration("VPCMESH_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// TestTimeouts returns short timeouts for tests against in-memory providers.
func TestTimeouts() *Timeouts {
	return &Timeouts{
		ProviderCall:      5 * time.Second,
		PeeringActive:     2 * time.Second,
		Delete:            5 * time.Second,
		RetryMaxAttempts:  2,
		RetryInitialDelay: time.Millisecond,
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set, unparseable or not positive, the default
// value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses a non-negative integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}

	return i
}
