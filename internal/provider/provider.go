// Package provider resolves a capability to a concrete `<provider>/<model>`
// pair and the environment-variable bundle the spawned agent process needs
// (spec.md §4.10). Grounded on kadirpekel-hector's llms registry
// conventions (a name-keyed lookup resolving to a concrete backend), but
// narrowed to string resolution only — Overstory never calls the model
// itself, it only launches the agent CLI with the right environment.
package provider

import (
	"fmt"
	"strings"

	"github.com/re-cinq/overstory/internal/config"
	"github.com/re-cinq/overstory/internal/errs"
)

// Resolution is the outcome of resolving a capability to a model: the raw
// model alias to pass to the CLI, and any environment variables that must
// be set in the spawned process.
type Resolution struct {
	Model string
	Env   map[string]string
}

// Resolve determines the model and environment bundle for capability,
// given the configured providers and capability→model map. Native
// providers (or an unconfigured capability) return no env and the raw
// model alias (spec.md §4.10).
func Resolve(cfg *config.Config, capability string) (Resolution, error) {
	ref, ok := cfg.Models[capability]
	if !ok {
		return Resolution{Model: ""}, nil
	}

	idx := strings.IndexByte(ref, '/')
	if idx < 0 {
		return Resolution{}, errs.Config(fmt.Sprintf("models.%s: %q must be of the form provider/model", capability, ref), nil)
	}
	providerName, model := ref[:idx], ref[idx+1:]

	if providerName == "native" {
		return Resolution{Model: model}, nil
	}

	p, ok := cfg.Providers[providerName]
	if !ok {
		return Resolution{}, errs.Config(fmt.Sprintf("models.%s: unknown provider %q", capability, providerName), nil)
	}

	env := map[string]string{
		"ANTHROPIC_BASE_URL":          p.BaseURL,
		"ANTHROPIC_API_KEY":           "",
		"ANTHROPIC_DEFAULT_SONNET_MODEL": model,
	}
	if p.AuthTokenEnv != "" {
		env["ANTHROPIC_AUTH_TOKEN"] = lookupEnv(p.AuthTokenEnv)
	}
	return Resolution{Model: model, Env: env}, nil
}

// lookupEnv is a package-level indirection over os.Getenv so tests can
// override it without mutating the real process environment.
var lookupEnv = defaultLookupEnv
