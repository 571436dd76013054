package events

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/idhash"
	"nft-market-lab/internal/observability"
	"nft-market-lab/internal/storage"
)

// Recorder subscribes to purchase events and persists them as sale records.
type Recorder struct {
	bus    *Bus
	sales  storage.SaleStore
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger.
func WithRecorderLogger(logger *log.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithRecorderClock overrides the time source. Tests use this for
// deterministic sale ids.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a Recorder reading from bus and writing to sales.
func NewRecorder(bus *Bus, sales storage.SaleStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		bus:    bus,
		sales:  sales,
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes to purchase events and begins recording in the background.
// It is a no-op if already started.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	ch, unsubscribe := r.bus.Subscribe(domain.EventItemBought)
	go r.run(ctx, ch, unsubscribe)
}

// Stop unsubscribes and waits for the background loop to drain.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
}

func (r *Recorder) run(ctx context.Context, ch <-chan domain.Event, unsubscribe func()) {
	defer close(r.done)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			bought, isBought := event.(domain.ItemBought)
			if !isBought {
				continue
			}
			r.record(ctx, bought)
		}
	}
}

// record builds the sale row and inserts it. Duplicate sale ids are skipped
// silently; the same purchase observed twice must not produce two rows.
func (r *Recorder) record(ctx context.Context, bought domain.ItemBought) {
	ts := r.now().UnixMilli()
	sale := &domain.Sale{
		SaleID:       idhash.ComputeSaleID(bought.Collection, bought.AssetID, bought.Buyer, ts),
		Collection:   bought.Collection,
		AssetID:      bought.AssetID,
		Seller:       bought.Seller,
		Buyer:        bought.Buyer,
		ListingPrice: bought.ListingPrice,
		ListingToken: bought.ListingToken,
		PaidAmount:   bought.Amount,
		PaidToken:    bought.PaymentToken,
		Timestamp:    ts,
	}

	err := r.sales.Insert(ctx, sale)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return
	}
	observability.RecordSaleStored(err)
	if err != nil {
		r.logger.Printf("recorder: insert sale %s: %v", sale.SaleID, err)
	}
}
