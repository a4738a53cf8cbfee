package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/arkhan2/invoicing-system-sub001/internal/audit"
	"github.com/arkhan2/invoicing-system-sub001/internal/auth"
	"github.com/arkhan2/invoicing-system-sub001/internal/estimates"
	"github.com/arkhan2/invoicing-system-sub001/internal/invoices"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/contacts"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/items"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/taxrates"
	"github.com/arkhan2/invoicing-system-sub001/internal/numbering"
	"github.com/arkhan2/invoicing-system-sub001/internal/observability"
	"github.com/arkhan2/invoicing-system-sub001/internal/payments"
	"github.com/arkhan2/invoicing-system-sub001/internal/render"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
	"github.com/arkhan2/invoicing-system-sub001/report"
)

// Services holds every domain service wired to Postgres and Redis.
type Services struct {
	Auth        *auth.Service
	Audit       *audit.Service
	Numbering   *numbering.Service
	TaxRates    *taxrates.Service
	Contacts    *contacts.Service
	Items       *items.Service
	Estimates   *estimates.Service
	Invoices    *invoices.Service
	Payments    *payments.Service
	Render      *render.Service
	Idempotency *shared.IdempotencyStore
}

// NewServices builds the service graph. redisClient may be nil, which only
// disables the PDF cache.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) (*Services, error) {
	domain := metrics.Domain()

	rates := taxrates.NewService(taxrates.NewRepository(pool))
	people := contacts.NewService(contacts.NewRepository(pool), logger)
	invoiceService := invoices.NewService(invoices.NewRepository(pool), people, rates, domain, logger)
	paymentService := payments.NewService(payments.NewRepository(pool), people, domain, logger)
	estimateService := estimates.NewService(estimates.NewRepository(pool), people, rates, domain, logger)

	renderService, err := render.NewService(render.Dependencies{
		Estimates: estimateService,
		Invoices:  invoiceService,
		Contacts:  people,
		Balances:  paymentService,
		Converter: report.NewClient(cfg.GotenbergURL, cfg.GotenbergTimeout),
		Cache:     render.NewPDFCache(redisClient, cfg.PDFCacheTTL),
		Metrics:   domain,
		Locale:    cfg.DocumentLocale,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("app: render: %w", err)
	}

	return &Services{
		Auth:        auth.NewService(auth.NewRepository(pool), logger),
		Audit:       audit.NewService(audit.NewRepository(pool)),
		Numbering:   numbering.NewService(numbering.NewRepository(pool), logger),
		TaxRates:    rates,
		Contacts:    people,
		Items:       items.NewService(items.NewRepository(pool), logger),
		Estimates:   estimateService,
		Invoices:    invoiceService,
		Payments:    paymentService,
		Render:      renderService,
		Idempotency: shared.NewIdempotencyStore(pool),
	}, nil
}

// Handlers returns the identity protected HTTP handlers.
func (s *Services) Handlers(logger *slog.Logger) []RouteMounter {
	return []RouteMounter{
		numbering.NewHandler(logger, s.Numbering),
		taxrates.NewHandler(logger, s.TaxRates),
		contacts.NewHandler(logger, s.Contacts),
		items.NewHandler(logger, s.Items),
		estimates.NewHandler(logger, s.Estimates),
		invoices.NewHandler(logger, s.Invoices, s.Payments),
		payments.NewHandler(logger, s.Payments),
		render.NewHandler(logger, s.Render),
		audit.NewHandler(logger, s.Audit),
	}
}
