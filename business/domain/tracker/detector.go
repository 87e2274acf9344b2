package tracker

import (
	"context"
	"github.com/Aero25x/ton-wallet-tracker/entities"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"sync/atomic"
	"time"
)

type Fetcher interface {
	GetTransactions(ctx context.Context, account string, limit int) ([]entities.Tx, error)
}

type Config struct {
	Account             string
	PageLimit           int
	FetchTimeout        time.Duration
	DeliverTimeout      time.Duration
	SeedAttempts        int
	PollInterval        time.Duration
	PollBackoff         time.Duration
	EventMaxRetries     int
	EventRetryBackoff   time.Duration
	EventConnectGrace   time.Duration
	EventSafetyInterval time.Duration
}

// Detector runs the fetch and reconcile cycles for one account. Cycles never
// overlap. Only the goroutine calling Run touches the engine.
type Detector struct {
	fetcher    Fetcher
	subscriber Subscriber
	sink       Sink
	engine     *Engine
	cfg        Config
	logger     *zap.SugaredLogger
	metrics    *Metrics

	mode        Mode
	delivered   uint64
	errorsCount uint
	lastCycle   time.Time
	status      atomic.Pointer[Status]
}

// NewDetector creates a detector. The subscriber is optional, without one the
// detector goes straight to polling.
func NewDetector(fetcher Fetcher, subscriber Subscriber, sink Sink, engine *Engine, cfg Config, logger *zap.SugaredLogger, metrics *Metrics) *Detector {
	d := Detector{
		fetcher:    fetcher,
		subscriber: subscriber,
		sink:       sink,
		engine:     engine,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
	d.publishStatus()
	return &d
}

// Run seeds the engine and then detects new transactions until ctx is done.
// It only returns the context error.
func (d *Detector) Run(ctx context.Context) error {
	d.setMode(ModeSeeding)
	if err := d.seed(ctx); err != nil {
		return err
	}

	if d.subscriber != nil && d.cfg.EventMaxRetries > 0 {
		d.setMode(ModeEvent)
		if err := d.runEventMode(ctx); err != nil {
			return err
		}
		d.logger.Warnw("Notifications abandoned, falling back to polling", "account", d.cfg.Account)
	}

	d.setMode(ModePoll)
	d.logger.Infow("Polling for new transactions", "account", d.cfg.Account, "interval", d.cfg.PollInterval)
	return d.drive(ctx, intervalTrigger{interval: d.cfg.PollInterval})
}

func (d *Detector) Status() Status {
	return *d.status.Load()
}

func (d *Detector) seed(ctx context.Context) error {
	attempts := max(d.cfg.SeedAttempts, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		page, err := d.fetch(ctx)
		if err == nil {
			d.engine.Seed(page)
			watermark, ok := d.engine.Watermark()
			d.logger.Infow("Monitoring started", "account", d.cfg.Account, "watermark", watermark, "hasWatermark", ok, "seen", d.engine.SeenCount())
			d.publishStatus()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.metrics.IncFetchErrors()
		d.logger.Warnw("Seeding fetch failed", "attempt", attempt, "maxAttempts", attempts, "error", err)
		if attempt < attempts {
			if err := sleep(ctx, d.cfg.PollBackoff); err != nil {
				return err
			}
		}
	}

	d.logger.Warnw("Starting without baseline, the next fetched page will be reported as new", "account", d.cfg.Account)
	return nil
}

// runEventMode returns nil once notifications are given up for this run.
func (d *Detector) runEventMode(ctx context.Context) error {
	start := time.Now()
	connected := false
	failures := 0

	for failures < d.cfg.EventMaxRetries {
		if !connected && d.cfg.EventConnectGrace > 0 && time.Since(start) >= d.cfg.EventConnectGrace {
			d.logger.Warnw("No notification subscription within grace period", "grace", d.cfg.EventConnectGrace)
			return nil
		}

		sub, err := d.subscribe(ctx, start, connected)
		if err == nil {
			connected = true
			d.logger.Infow("Subscribed to account notifications", "account", d.cfg.Account)
			err = d.drive(ctx, subscriptionTrigger{sub: sub, safetyInterval: d.cfg.EventSafetyInterval})
			if closeErr := sub.Close(); closeErr != nil {
				d.logger.Warnw("Closing subscription", "error", closeErr)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		d.metrics.IncSubscriptionFailures()
		d.logger.Warnw("Notification subscription failed", "attempt", failures, "maxAttempts", d.cfg.EventMaxRetries, "error", err)
		if failures < d.cfg.EventMaxRetries {
			if err := sleep(ctx, d.cfg.EventRetryBackoff); err != nil {
				return err
			}
		}
	}
	return nil
}

// subscribe bounds the handshake by the grace period until the first
// subscription succeeded.
func (d *Detector) subscribe(ctx context.Context, start time.Time, connected bool) (Subscription, error) {
	if connected || d.cfg.EventConnectGrace <= 0 {
		return d.subscriber.Subscribe(ctx, d.cfg.Account)
	}
	graceCtx, cancel := context.WithDeadline(ctx, start.Add(d.cfg.EventConnectGrace))
	defer cancel()
	return d.subscriber.Subscribe(graceCtx, d.cfg.Account)
}

// drive runs one cycle per trigger. A failed cycle is retried after the poll
// backoff instead of waiting for the trigger. drive returns when the trigger
// breaks or ctx is done.
func (d *Detector) drive(ctx context.Context, trigger Trigger) error {
	retry := false
	for {
		if retry {
			if err := sleep(ctx, d.cfg.PollBackoff); err != nil {
				return err
			}
		} else if err := trigger.Next(ctx); err != nil {
			return err
		}

		err := d.runCycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		retry = err != nil
		if err != nil {
			d.incrementErrorCount()
			d.logger.Warnw("Checking for new transactions failed", "mode", d.mode, "retryIn", d.cfg.PollBackoff, "error", err)
		} else {
			d.resetErrorCount()
		}
		d.publishStatus()
	}
}

func (d *Detector) runCycle(ctx context.Context) error {
	page, err := d.fetch(ctx)
	if err != nil {
		d.metrics.IncFetchErrors()
		return errors.Wrap(err, "fetching transactions")
	}

	fresh := d.engine.Reconcile(page)
	d.lastCycle = time.Now()
	d.metrics.IncCycles()
	d.metrics.AddNewTransactions(len(fresh))
	watermark, _ := d.engine.Watermark()
	d.metrics.SetWatermark(watermark, d.engine.SeenCount())

	for _, tx := range fresh {
		d.logger.Infow("New transaction detected", "hash", tx.Hash, "lt", tx.LT)
		// the engine already marked tx as seen, it is not delivered again
		if err := d.deliver(ctx, tx); err != nil {
			d.metrics.IncDeliveryErrors()
			d.logger.Errorw("Delivering transaction", "hash", tx.Hash, "lt", tx.LT, "error", err)
			continue
		}
		d.delivered++
	}
	return nil
}

func (d *Detector) fetch(ctx context.Context) ([]entities.Tx, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.FetchTimeout)
	defer cancel()
	return d.fetcher.GetTransactions(ctx, d.cfg.Account, d.cfg.PageLimit)
}

func (d *Detector) deliver(ctx context.Context, tx entities.Tx) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DeliverTimeout)
	defer cancel()
	return d.sink.Deliver(ctx, tx)
}

func (d *Detector) setMode(mode Mode) {
	d.mode = mode
	d.metrics.SetMode(mode)
	d.publishStatus()
}

func (d *Detector) incrementErrorCount() {
	d.errorsCount++
	d.metrics.SetErrors(d.errorsCount)
}

func (d *Detector) resetErrorCount() {
	d.errorsCount = 0
	d.metrics.SetErrors(d.errorsCount)
}

func (d *Detector) publishStatus() {
	watermark, ok := d.engine.Watermark()
	d.status.Store(&Status{
		Account:               d.cfg.Account,
		Mode:                  d.mode.String(),
		Watermark:             watermark,
		HasWatermark:          ok,
		SeenTransactions:      d.engine.SeenCount(),
		DeliveredTransactions: d.delivered,
		ConsecutiveErrors:     d.errorsCount,
		LastCycle:             d.lastCycle,
	})
}
