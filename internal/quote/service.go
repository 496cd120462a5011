package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sdeal/internal/common"
	"github.com/noah-isme/backend-sdeal/internal/notify"
	"github.com/noah-isme/backend-sdeal/internal/obs"
	"github.com/noah-isme/backend-sdeal/internal/pricing"
	"github.com/noah-isme/backend-sdeal/internal/queue"
)

type leadStore interface {
	idChecker
	InsertLead(ctx context.Context, lead *Lead) error
	ListLeads(ctx context.Context, limit, offset int) ([]Lead, int64, error)
	GetLead(ctx context.Context, quoteID string) (Lead, error)
}

// PriceSource yields the active price list. *pricing.Loader satisfies it.
type PriceSource interface {
	Load(ctx context.Context) pricing.PriceList
}

// Customer holds a lead's contact details.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// Lead is a persisted quote request.
type Lead struct {
	ID          string          `json:"id"`
	QuoteID     string          `json:"quoteId"`
	ProductSlug string          `json:"productSlug"`
	Customer    Customer        `json:"customer"`
	DeliveryKm  decimal.Decimal `json:"deliveryKm"`
	Inputs      pricing.Inputs  `json:"inputs"`
	Estimate    pricing.Result  `json:"estimate"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Submission is returned to the customer after a lead is saved.
type Submission struct {
	QuoteID  string         `json:"quoteId"`
	Estimate pricing.Result `json:"estimate"`
}

// insertAttempts bounds how many fresh quote IDs are tried when an insert
// collides on the unique constraint.
const insertAttempts = 2

// Service prices quote forms and records leads.
type Service struct {
	store            leadStore
	prices           PriceSource
	policy           pricing.Policy
	queue            queue.Publisher
	emailMaxAttempts int
	ids              idAllocator
	logger           zerolog.Logger
}

// ServiceConfig groups Service dependencies. Queue is optional; without it
// leads are saved but no email is scheduled.
type ServiceConfig struct {
	Store            leadStore
	Prices           PriceSource
	Policy           pricing.Policy
	Queue            queue.Publisher
	EmailMaxAttempts int
	NewID            func() (string, error)
	Logger           zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("quote: store is required")
	}
	if cfg.Prices == nil {
		return nil, errors.New("quote: price source is required")
	}
	gen := cfg.NewID
	if gen == nil {
		gen = NewQuoteID
	}
	return &Service{
		store:            cfg.Store,
		prices:           cfg.Prices,
		policy:           cfg.Policy,
		queue:            cfg.Queue,
		emailMaxAttempts: cfg.EmailMaxAttempts,
		ids:              idAllocator{checker: cfg.Store, generate: gen, maxTries: 5, logger: cfg.Logger},
		logger:           cfg.Logger,
	}, nil
}

// Estimate validates the form and prices it against the active price list.
func (s *Service) Estimate(ctx context.Context, form EstimateForm) (pricing.Result, error) {
	if err := form.Validate(); err != nil {
		return pricing.Result{}, err
	}
	result := pricing.CalculateWithPolicy(form.Inputs(), s.prices.Load(ctx), s.policy)
	obs.RecordEstimate(form.ProductSlug)
	return result, nil
}

// Submit recomputes the estimate server side, stores the lead with a fresh
// quote ID and schedules the sales email. A client supplied total is never
// consulted.
func (s *Service) Submit(ctx context.Context, form LeadForm) (Submission, error) {
	if err := form.Validate(); err != nil {
		obs.RecordLead(form.ProductSlug, "invalid", 0)
		return Submission{}, err
	}
	inputs := form.Inputs()
	result := pricing.CalculateWithPolicy(inputs, s.prices.Load(ctx), s.policy)

	lead := Lead{
		ProductSlug: form.ProductSlug,
		Customer: Customer{
			Name:  form.CustomerName,
			Email: form.CustomerEmail,
			Phone: form.CustomerPhone,
			Notes: form.Notes,
		},
		DeliveryKm: inputs.DeliveryKm,
		Inputs:     inputs,
		Estimate:   result,
	}

	if err := s.insertWithFreshID(ctx, &lead); err != nil {
		obs.RecordLead(form.ProductSlug, "error", 0)
		s.logger.Error().Err(err).Str("product", form.ProductSlug).Msg("save lead")
		return Submission{}, common.NewAppError("INTERNAL", "could not save quote request", http.StatusInternalServerError, err)
	}
	total, _ := result.Total.Float64()
	obs.RecordLead(form.ProductSlug, "ok", total)
	s.logger.Info().Str("quote_id", lead.QuoteID).Str("product", lead.ProductSlug).Str("total", result.Total.StringFixed(2)).Msg("lead saved")

	s.scheduleEmail(ctx, lead)
	return Submission{QuoteID: lead.QuoteID, Estimate: result}, nil
}

func (s *Service) insertWithFreshID(ctx context.Context, lead *Lead) error {
	var lastErr error
	for attempt := 0; attempt < insertAttempts; attempt++ {
		id, err := s.ids.Allocate(ctx)
		if err != nil {
			return err
		}
		lead.QuoteID = id
		err = s.store.InsertLead(ctx, lead)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrQuoteIDTaken) {
			return err
		}
		s.logger.Warn().Str("quote_id", id).Msg("quote id collision, retrying")
	}
	return fmt.Errorf("allocate quote id: %w", lastErr)
}

// scheduleEmail enqueues the notification. The lead is already saved, so a
// queue failure is logged rather than failing the request.
func (s *Service) scheduleEmail(ctx context.Context, lead Lead) {
	if s.queue == nil {
		return
	}
	items := make([]notify.QuoteEmailItem, 0, len(lead.Estimate.Items))
	for _, it := range lead.Estimate.Items {
		items = append(items, notify.QuoteEmailItem{Label: it.Label, Quantity: it.Quantity, UnitPrice: it.UnitPrice, LineTotal: it.LineTotal})
	}
	msg := notify.QuoteEmail{
		QuoteID:     lead.QuoteID,
		ProductSlug: lead.ProductSlug,
		Customer: notify.QuoteCustomer{
			Name:  lead.Customer.Name,
			Email: lead.Customer.Email,
			Phone: lead.Customer.Phone,
			Notes: lead.Customer.Notes,
		},
		Items: items,
		Total: lead.Estimate.Total,
	}
	if err := notify.EnqueueQuoteEmail(context.WithoutCancel(ctx), s.queue, msg, s.emailMaxAttempts); err != nil {
		s.logger.Error().Err(err).Str("quote_id", lead.QuoteID).Msg("enqueue quote email")
	}
}

// ListLeads returns a page of leads for the admin list.
func (s *Service) ListLeads(ctx context.Context, page, perPage int) ([]Lead, int64, error) {
	leads, total, err := s.store.ListLeads(ctx, perPage, common.Offset(page, perPage))
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	return leads, total, nil
}

// GetLead returns a lead by quote ID.
func (s *Service) GetLead(ctx context.Context, quoteID string) (Lead, error) {
	quoteID = strings.ToUpper(strings.TrimSpace(quoteID))
	if !ValidQuoteID(quoteID) {
		return Lead{}, common.NotFound("quote not found", ErrLeadNotFound)
	}
	lead, err := s.store.GetLead(ctx, quoteID)
	if err != nil {
		if errors.Is(err, ErrLeadNotFound) {
			return Lead{}, common.NotFound("quote not found", err)
		}
		return Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}
