// Package strategy holds the concrete trading strategies and the factory
// registry the runner builds them from.
package strategy

import (
	"fmt"

	"github.com/alejandrodnm/tradesim/internal/engine"
)

// Factory builds a strategy instance with an id and its engine
// dependencies.
type Factory func(id string, deps engine.Deps) engine.Strategy

// Registry maps strategy names to factories.
type Registry map[string]Factory

// NewRegistry creates a registry with the built-in strategies.
func NewRegistry() Registry {
	return Registry{
		"dip_buyer":      NewDipBuyer,
		"mean_reversion": NewMeanReversion,
	}
}

// Register adds a factory under a name.
func (r Registry) Register(name string, f Factory) {
	r[name] = f
}

// New builds a strategy by registered name.
func (r Registry) New(name, id string, deps engine.Deps) (engine.Strategy, error) {
	f, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("strategy.Registry.New: unknown strategy %q", name)
	}
	return f(id, deps), nil
}

// floatParam reads a numeric parameter. YAML unmarshals whole numbers
// as int, so both int and float64 are accepted.
func floatParam(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}
