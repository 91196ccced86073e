package ord

import "git.home.luguber.info/inful/ordserve/internal/config"

// AccessStrategy is one entry of an accessStrategies list.
type AccessStrategy struct {
	Type string `json:"type"`
}

// Access strategy types as defined by the ORD specification.
const (
	StrategyOpen      = "open"
	StrategyBasicAuth = "sap.businesshub:basic-auth:v1"
	StrategyCMPMTLS   = "sap:cmp-mtls:v1"
)

// StrategiesForAuthMethods maps the configured authentication methods to the
// access strategies advertised in the ORD configuration and in every rewritten
// resource definition. mtls and cf-mtls collapse into a single strategy.
func StrategiesForAuthMethods(methods []config.AuthMethod) []AccessStrategy {
	var out []AccessStrategy
	seen := map[string]bool{}
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, AccessStrategy{Type: t})
		}
	}
	for _, m := range methods {
		switch m {
		case config.AuthOpen:
			add(StrategyOpen)
		case config.AuthBasic:
			add(StrategyBasicAuth)
		case config.AuthMTLS, config.AuthCFMTLS:
			add(StrategyCMPMTLS)
		}
	}
	if len(out) == 0 {
		add(StrategyOpen)
	}
	return out
}

// strategyMaps renders strategies as generic JSON maps for in-document replacement.
func strategyMaps(strategies []AccessStrategy) []any {
	out := make([]any, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, map[string]any{"type": s.Type})
	}
	return out
}
