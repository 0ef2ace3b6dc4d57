package units

import (
	"context"

	"agentarena/internal/types"
	"agentarena/internal/unit"
)

// Echo reports the value under "t" and the sorted context keys. It is the
// reference runner for checking what a generator produced.
type Echo struct {
	unit.Base
}

// NewEcho creates the echo runner.
func NewEcho() *Echo {
	return &Echo{Base: unit.MustBase(NameEcho)}
}

func (e *Echo) Run(_ context.Context, tc types.Context) (types.Metrics, error) {
	return types.Metrics{
		"seen": tc["t"],
		"keys": tc.Keys(),
	}, nil
}
