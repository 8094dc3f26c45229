package stage

import "context"

// Health summarizes the readiness of one analysis dependency.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Checker is anything that can report its own reachability.
type Checker interface {
	Health(ctx context.Context) error
}

// Check runs checker and converts the outcome. A nil checker is unhealthy.
func Check(ctx context.Context, name string, checker Checker) Health {
	if checker == nil {
		return Unhealthy(name, "not configured")
	}
	if err := checker.Health(ctx); err != nil {
		return Unhealthy(name, err.Error())
	}
	return Healthy(name)
}
