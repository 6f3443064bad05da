package broker

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"forex-trader/internal/config"
)

// Property: For any reconnect configuration, the scheduled delay never
// exceeds the configured ceiling and never shrinks as attempts accumulate.
func TestProperty_ReconnectDelayMonotoneAndCapped(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	cfgGen := gopter.CombineGens(
		gen.IntRange(50, 5000),    // initial delay ms
		gen.IntRange(5000, 60000), // max delay ms
		gen.Float64Range(1.0, 3.0),
	).Map(func(vs []interface{}) config.ReconnectConfig {
		return config.ReconnectConfig{
			InitialDelayMs:    vs[0].(int),
			MaxDelayMs:        vs[1].(int),
			BackoffMultiplier: vs[2].(float64),
		}
	})

	properties.Property("delay is capped at the maximum", prop.ForAll(
		func(cfg config.ReconnectConfig, n int) bool {
			return ReconnectDelay(cfg, n) <= cfg.MaxDelay()
		},
		cfgGen,
		gen.IntRange(0, 30),
	))

	properties.Property("delay never decreases with the attempt number", prop.ForAll(
		func(cfg config.ReconnectConfig, n int) bool {
			return ReconnectDelay(cfg, n+1) >= ReconnectDelay(cfg, n)
		},
		cfgGen,
		gen.IntRange(0, 30),
	))

	properties.Property("first delay equals the configured initial delay", prop.ForAll(
		func(cfg config.ReconnectConfig) bool {
			return ReconnectDelay(cfg, 0) == cfg.InitialDelay()
		},
		cfgGen,
	))

	properties.TestingRun(t)
}
