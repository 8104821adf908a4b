// Package builder is the entry point consumers use to run one quote: it
// supervises the initial load, applies actions, routes between steps and
// prices the catalog against the current promotions.
package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harborline/quotebuilder/pkg/catalog"
	"github.com/harborline/quotebuilder/pkg/finance"
	"github.com/harborline/quotebuilder/pkg/pricing"
	"github.com/harborline/quotebuilder/pkg/promotions"
	"github.com/harborline/quotebuilder/pkg/quote"
	"github.com/harborline/quotebuilder/pkg/recovery"
	"github.com/harborline/quotebuilder/pkg/steps"
	"github.com/harborline/quotebuilder/pkg/storage"
)

var (
	ErrOptionNotOffered = errors.New("promotion option is not offered for this quote")
	ErrUnknownMotor     = errors.New("motor not found in catalog")
)

type Options struct {
	Gateway  *storage.Gateway
	Catalog  catalog.Source
	Finance  finance.Config
	Recovery recovery.Config
	Now      func() time.Time
	Logger   quote.Logger
}

// Session is one customer's quote.
type Session struct {
	store   *quote.Store
	gateway *storage.Gateway
	source  catalog.Source
	finance finance.Config
	now     func() time.Time
	log     quote.Logger
	ctrl    *recovery.Controller

	mu   sync.RWMutex
	snap catalog.Snapshot
}

func New(opts Options) *Session {
	s := &Session{
		gateway: opts.Gateway,
		source:  opts.Catalog,
		finance: opts.Finance,
		now:     opts.Now,
		log:     opts.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = quote.NopLogger{}
	}
	if s.source == nil {
		s.source = catalog.Static{}
	}
	if s.finance == (finance.Config{}) {
		s.finance = finance.DefaultConfig()
	}

	var persister quote.Persister
	if s.gateway != nil {
		persister = s.gateway
	}
	s.store = quote.NewStore(persister, s.log)

	rc := opts.Recovery
	if rc.Logger == nil {
		rc.Logger = s.log
	}
	s.ctrl = recovery.New(rc, recovery.Hooks{
		Hydrate:       []func(context.Context) error{s.hydrateQuote, s.refreshCatalog},
		ForceStartNew: func() { s.store.ResetInMemory() },
		ClearAll:      s.store.StartFresh,
	})
	return s
}

func (s *Session) hydrateQuote(ctx context.Context) error {
	if s.gateway == nil {
		return nil
	}
	s.store.Hydrate(ctx, s.gateway)
	return ctx.Err()
}

func (s *Session) refreshCatalog(ctx context.Context) error {
	snap, err := s.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

// Open starts the supervised load and waits for it to settle.
func (s *Session) Open(ctx context.Context) (recovery.State, error) {
	s.ctrl.Start(ctx)
	return s.ctrl.Wait(ctx)
}

// Status is the loader state and its progress message.
func (s *Session) Status() (recovery.State, string) {
	return s.ctrl.State(), s.ctrl.Message()
}

func (s *Session) Recover(ctx context.Context, a recovery.Action) (recovery.State, error) {
	if err := s.ctrl.Recover(ctx, a); err != nil {
		return s.ctrl.State(), err
	}
	return s.ctrl.Wait(ctx)
}

// Close stops the controller and waits for pending writes.
func (s *Session) Close(ctx context.Context) error {
	s.ctrl.Stop()
	err := s.store.Flush(ctx)
	s.store.Wait()
	return err
}

func (s *Session) Config() quote.Configuration { return s.store.State() }

func (s *Session) Dispatch(a quote.Action) quote.Configuration { return s.store.Dispatch(a) }

func (s *Session) Evaluate() steps.Evaluation { return steps.Evaluate(s.store.State()) }

// Advance marks completed done, saves synchronously, and moves to the step
// the evaluator routes to.
func (s *Session) Advance(ctx context.Context, completed int) (steps.Evaluation, error) {
	next := steps.Evaluate(s.store.State()).NextStep
	cfg, err := s.store.Advance(ctx, completed, next)
	if err != nil {
		return steps.Evaluation{}, err
	}
	return steps.Evaluate(cfg), nil
}

// StartFresh empties the quote and deletes the stored copy.
func (s *Session) StartFresh(ctx context.Context) error {
	return s.store.StartFresh(ctx)
}

func (s *Session) Catalog() catalog.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// ItemPrice is one catalog item priced against current promotions.
type ItemPrice struct {
	Motor   catalog.Motor   `json:"motor"`
	Price   pricing.Result  `json:"price"`
	Payment finance.Payment `json:"payment"`
}

func (s *Session) price(m catalog.Motor, snap catalog.Snapshot, now time.Time) ItemPrice {
	r := pricing.Compose(m, promotions.MatchAt(m, snap.Promotions, snap.Rules, now))
	return ItemPrice{Motor: m, Price: r, Payment: s.finance.Estimate(r.EffectivePrice, nil)}
}

// PriceAll prices every catalog item.
func (s *Session) PriceAll() []ItemPrice {
	snap := s.Catalog()
	now := s.now()
	out := make([]ItemPrice, 0, len(snap.Motors))
	for _, m := range snap.Motors {
		p := s.price(m, snap, now)
		out = append(out, p)
	}
	return out
}

// SelectMotor prices the catalog item id and records it on the quote.
func (s *Session) SelectMotor(id string) (quote.Configuration, error) {
	snap := s.Catalog()
	m, ok := snap.Find(id)
	if !ok {
		return s.store.State(), fmt.Errorf("%w: %s", ErrUnknownMotor, id)
	}
	p := s.price(m, snap, s.now())
	return s.store.Dispatch(quote.SetMotor{Motor: pricing.MotorSnapshot(m, p.Price)}), nil
}

func (s *Session) benefits(c quote.Configuration) promotions.Benefits {
	if c.Motor == nil {
		return promotions.Benefits{}
	}
	snap := s.Catalog()
	m, ok := snap.Find(c.Motor.ID)
	if !ok {
		return promotions.Benefits{}
	}
	return promotions.Summarize(promotions.MatchAt(m, snap.Promotions, snap.Rules, s.now()))
}

// Summary is everything a summary page renders.
type Summary struct {
	Config     quote.Configuration `json:"config"`
	Evaluation steps.Evaluation    `json:"evaluation"`
	Totals     pricing.Totals      `json:"totals"`
	Benefits   promotions.Benefits `json:"benefits"`
	Offers     []finance.Offer     `json:"offers"`
	Payment    finance.Payment     `json:"payment"`
}

func (s *Session) Summary() Summary {
	c := s.store.State()
	b := s.benefits(c)
	t := pricing.QuoteTotals(c, b)
	return Summary{
		Config:     c,
		Evaluation: steps.Evaluate(c),
		Totals:     t,
		Benefits:   b,
		Offers:     s.offers(c, b),
		Payment:    s.finance.Estimate(t.Financed, c.PromoDetails),
	}
}

// offers are computed on the total before any rebate, so choosing the
// rebate cannot change which options were shown.
func (s *Session) offers(c quote.Configuration, b promotions.Benefits) []finance.Offer {
	base := c.Clone()
	base.PromoDetails = nil
	return s.finance.Offers(pricing.QuoteTotals(base, b).Financed, b)
}

// VisitPromotions resets the promotion choice and returns what may be
// offered now.
func (s *Session) VisitPromotions() []finance.Offer {
	c := s.store.Dispatch(quote.VisitPromotions{})
	return s.offers(c, s.benefits(c))
}

// Apply dispatches a decoded action. A promotion choice goes through
// ChoosePromo so only an offered option is stored, with the terms the session
// computes rather than the ones the action carries.
func (s *Session) Apply(a quote.Action) (quote.Configuration, error) {
	if p, ok := a.(quote.SetPromoDetails); ok && p.Details != nil {
		return s.ChoosePromo(p.Details.Option)
	}
	return s.store.Dispatch(a), nil
}

// ChoosePromo records option if it is currently offered.
func (s *Session) ChoosePromo(option quote.PromoOption) (quote.Configuration, error) {
	c := s.store.State()
	offer, ok := finance.Offered(s.offers(c, s.benefits(c)), option)
	if !ok {
		return c, fmt.Errorf("%w: %s", ErrOptionNotOffered, option)
	}
	return s.store.Dispatch(quote.SetPromoDetails{Details: offer.Details()}), nil
}
