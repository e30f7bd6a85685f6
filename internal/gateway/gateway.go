// Package gateway carries the outbound leg of external transfers. The
// destination account lives in a partner subsystem; this package owns the
// call that credits it.
package gateway

import (
	"context"

	"caisse/internal/domain"
	"caisse/pkg/logger"
)

// Logging is the development gateway: it acknowledges every credit and
// leaves a trace. Production deployments swap in a partner client behind
// the same interface.
type Logging struct {
	logger logger.Logger
}

func NewLogging(log logger.Logger) *Logging {
	return &Logging{logger: log}
}

func (g *Logging) Credit(ctx context.Context, tx *domain.Transaction) error {
	_ = ctx
	g.logger.Info("External credit acknowledged", map[string]interface{}{
		"transaction_id": tx.ID,
		"destination":    tx.DestinationAccount,
		"amount":         tx.Amount.String(),
	})
	return nil
}
