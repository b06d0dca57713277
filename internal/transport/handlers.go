package transport

import (
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/aduan/internal/dedupe"
	"github.com/pitabwire/aduan/internal/intent"
	"github.com/pitabwire/aduan/internal/observability"
	"github.com/pitabwire/aduan/internal/openapi"
	"github.com/pitabwire/aduan/internal/session"
)

// Handlers bundles the API handlers and their collaborators.
type Handlers struct {
	sessions  *session.Manager
	sweeper   *session.Sweeper
	router    *intent.Router
	dedupe    dedupe.Store
	dedupeTTL time.Duration
	schema    *openapi.Index
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewHandlers creates the handler set. A nil dedupe store disables message
// deduplication.
func NewHandlers(
	sessions *session.Manager,
	sweeper *session.Sweeper,
	router *intent.Router,
	dedupeStore dedupe.Store,
	dedupeTTL time.Duration,
	schema *openapi.Index,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Handlers {
	return &Handlers{
		sessions:  sessions,
		sweeper:   sweeper,
		router:    router,
		dedupe:    dedupeStore,
		dedupeTTL: dedupeTTL,
		schema:    schema,
		logger:    logger,
		metrics:   metrics,
	}
}
