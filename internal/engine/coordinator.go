// Package engine provides the monitoring coordinator: it owns the lifecycle
// of the detector, liquidity monitor, and oracle validator, routes their
// events to subscribers and the signal bus, and exposes an aggregated
// health/stats snapshot.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openarb/venuewatch/internal/detector"
	"github.com/openarb/venuewatch/internal/domain"
	"github.com/openarb/venuewatch/internal/liquidity"
	"github.com/openarb/venuewatch/internal/oracle"
)

// Bus channel names for re-emitted events.
const (
	ChannelOpportunities = "opportunities"
	ChannelAlerts        = "alerts"
	ChannelHealth        = "health"
)

// Event is the unified event surface re-emitted by the coordinator. Exactly
// one of the payload fields is set, matching Type.
type Event struct {
	Type           string
	Opportunity    *domain.ArbitrageOpportunity
	LiquidityAlert *domain.LiquidityAlert
	HealthAlert    *domain.HealthAlert
}

// Config holds coordinator parameters.
type Config struct {
	HealthCheckInterval time.Duration
	EventBufferSize     int
	// DedupeTTL enables the de-bounce stage when > 0. Zero preserves free
	// duplicate emission from the dual reactive/periodic triggers.
	DedupeTTL time.Duration
	// ObservationMaxAge is how old the newest cached observation may be
	// before the feed is reported stale. Zero disables the check.
	ObservationMaxAge time.Duration
}

// Coordinator wires the engine components together. All shared mutable state
// (observation cache, liquidity histories) stays owned by its component;
// the coordinator only routes events and answers health queries.
type Coordinator struct {
	cfg       Config
	cache     domain.ObservationCache
	detector  *detector.Detector
	monitor   *liquidity.Monitor
	validator *oracle.Validator
	mirror    domain.LivePriceCache // optional
	bus       domain.SignalBus      // optional

	oppCh   <-chan domain.ArbitrageOpportunity
	alertCh <-chan domain.LiquidityAlert
	dedupe  *Dedup // nil when disabled

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc
	group     *errgroup.Group
	counters  map[string]uint64
	subs      map[int]chan Event
	nextSub   int

	clock  domain.Clock
	logger *slog.Logger
}

// Deps bundles the coordinator's collaborators. Mirror and Bus are optional.
type Deps struct {
	Cache     domain.ObservationCache
	Detector  *detector.Detector
	Monitor   *liquidity.Monitor
	Validator *oracle.Validator
	Mirror    domain.LivePriceCache
	Bus       domain.SignalBus

	Opportunities <-chan domain.ArbitrageOpportunity
	Alerts        <-chan domain.LiquidityAlert
}

// New creates a Coordinator. A nil clock defaults to the wall clock.
func New(cfg Config, deps Deps, clock domain.Clock, logger *slog.Logger) *Coordinator {
	if clock == nil {
		clock = domain.RealClock{}
	}
	c := &Coordinator{
		cfg:       cfg,
		cache:     deps.Cache,
		detector:  deps.Detector,
		monitor:   deps.Monitor,
		validator: deps.Validator,
		mirror:    deps.Mirror,
		bus:       deps.Bus,
		oppCh:     deps.Opportunities,
		alertCh:   deps.Alerts,
		counters:  make(map[string]uint64),
		subs:      make(map[int]chan Event),
		clock:     clock,
		logger:    logger.With(slog.String("component", "coordinator")),
	}
	if cfg.DedupeTTL > 0 {
		c.dedupe = NewDedup(cfg.DedupeTTL, clock)
	}
	return c
}

// Start launches the detector, liquidity monitor, event relay, and health
// loop. Calling Start while already started is a no-op that logs a warning.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		c.logger.Warn("start called while already running")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	c.started = true
	c.startedAt = c.clock.Now()
	c.cancel = cancel
	c.group = g
	c.mu.Unlock()

	g.Go(func() error { return c.detector.Run(gctx) })
	g.Go(func() error { return c.monitor.Run(gctx) })
	g.Go(func() error { return c.relayLoop(gctx) })
	g.Go(func() error { return c.healthLoop(gctx) })

	c.logger.Info("coordinator started",
		slog.Duration("health_check_interval", c.cfg.HealthCheckInterval),
		slog.Bool("dedupe_enabled", c.dedupe != nil),
	)
	return nil
}

// Stop cancels both timers and all component loops and waits for them to
// exit. Calling Stop while already stopped is a no-op that logs a warning.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		c.logger.Warn("stop called while not running")
		return
	}
	cancel := c.cancel
	group := c.group
	c.started = false
	c.cancel = nil
	c.group = nil
	c.mu.Unlock()

	cancel()
	if group != nil {
		_ = group.Wait()
	}

	c.mu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	c.logger.Info("coordinator stopped")
}

// Running reports whether the coordinator is started.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// IngestObservation applies one feed observation: cache write, optional live
// mirror, then the reactive detector trigger. Results arriving after Stop are
// discarded.
func (c *Coordinator) IngestObservation(ctx context.Context, obs domain.PriceObservation) {
	if !c.Running() {
		return
	}
	stored := c.cache.Put(obs)
	c.count(domain.EventObservation)

	if c.mirror != nil {
		if err := c.mirror.SetObservation(ctx, stored); err != nil {
			c.logger.Debug("live price mirror write failed",
				slog.String("venue", obs.Venue),
				slog.String("instrument", obs.Instrument),
				slog.String("error", err.Error()),
			)
		}
	}

	c.detector.OnObservation(ctx, stored)
}

// IngestReserves applies one pool reserve snapshot to the liquidity monitor.
func (c *Coordinator) IngestReserves(ctx context.Context, snap domain.ReserveSnapshot) {
	if !c.Running() {
		return
	}
	c.monitor.Update(ctx, snap)
}

// IngestOraclePrice applies one oracle reading to the consensus validator.
func (c *Coordinator) IngestOraclePrice(ctx context.Context, reading domain.OraclePrice) {
	if !c.Running() {
		return
	}
	c.validator.SetReading(reading)
	c.count(domain.EventOraclePrice)
}

// Subscribe registers an in-process event subscriber. Slow subscribers drop
// events rather than stalling the relay. The cancel function unregisters the
// subscriber and closes its channel.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, c.cfg.EventBufferSize)
	c.subs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			close(sub)
			delete(c.subs, id)
		}
	}
	return ch, cancel
}

// relayLoop drains component event channels, counts them, applies the
// optional de-bounce stage, and re-emits to subscribers and the bus.
func (c *Coordinator) relayLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case opp := <-c.oppCh:
			if c.dedupe != nil && c.dedupe.IsDuplicate(opp.DedupeKey()) {
				continue
			}
			c.count(domain.EventOpportunity)
			c.logger.Info("opportunity detected",
				slog.String("pair", opp.Pair),
				slog.Float64("profit_percent", opp.ProfitPercent),
				slog.Float64("net_profit", opp.NetProfit),
				slog.Float64("confidence", opp.Confidence),
			)
			c.publish(ctx, ChannelOpportunities, opp)
			c.fanOut(Event{Type: domain.EventOpportunity, Opportunity: &opp})
		case alert := <-c.alertCh:
			c.count(domain.EventLiquidityAlert)
			c.logger.Warn("liquidity alert",
				slog.String("type", string(alert.Type)),
				slog.String("severity", string(alert.Severity)),
				slog.String("instrument", alert.Instrument),
				slog.String("message", alert.Message),
			)
			c.publish(ctx, ChannelAlerts, alert)
			c.fanOut(Event{Type: domain.EventLiquidityAlert, LiquidityAlert: &alert})
		}
	}
}

// healthLoop periodically evaluates component liveness and emits health
// alerts for every detected issue.
func (c *Coordinator) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if c.dedupe != nil {
				c.dedupe.Cleanup()
			}
			for _, issue := range c.issues() {
				alert := domain.HealthAlert{
					ID:        uuid.Must(uuid.NewRandom()).String(),
					Component: issue.component,
					Severity:  domain.SeverityHigh,
					Message:   issue.message,
					Timestamp: c.clock.Now(),
				}
				c.count(domain.EventHealthAlert)
				c.logger.Warn("health issue",
					slog.String("health_component", alert.Component),
					slog.String("message", alert.Message),
				)
				c.publish(ctx, ChannelHealth, alert)
				c.fanOut(Event{Type: domain.EventHealthAlert, HealthAlert: &alert})
			}
		}
	}
}

type healthIssue struct {
	component string
	message   string
}

func (c *Coordinator) issues() []healthIssue {
	var out []healthIssue

	if c.validator.Sources() == 0 {
		out = append(out, healthIssue{
			component: "oracle_validator",
			message:   "no oracle sources connected",
		})
	}
	if !c.monitor.Running() {
		out = append(out, healthIssue{
			component: "liquidity_monitor",
			message:   "background liquidity loop not running",
		})
	}
	if c.cfg.ObservationMaxAge > 0 {
		if newest, ok := c.newestObservation(); ok {
			if age := c.clock.Now().Sub(newest); age > c.cfg.ObservationMaxAge {
				out = append(out, healthIssue{
					component: "observation_feed",
					message:   "newest observation is " + age.Truncate(time.Second).String() + " old",
				})
			}
		}
	}
	return out
}

func (c *Coordinator) newestObservation() (time.Time, bool) {
	var newest time.Time
	found := false
	for _, obs := range c.cache.Snapshot() {
		if !found || obs.ObservedAt.After(newest) {
			newest = obs.ObservedAt
			found = true
		}
	}
	return newest, found
}

// Stats returns the current stats snapshot: uptime, per-component liveness,
// event counters, aggregated issues, and the derived health classification
// (0 issues healthy, 1 warning, 2+ critical).
func (c *Coordinator) Stats() domain.EngineStats {
	c.mu.Lock()
	running := c.started
	startedAt := c.startedAt
	counts := make(map[string]uint64, len(c.counters))
	for k, v := range c.counters {
		counts[k] = v
	}
	c.mu.Unlock()

	issues := c.issues()
	messages := make([]string, 0, len(issues))
	for _, issue := range issues {
		messages = append(messages, issue.component+": "+issue.message)
	}

	health := domain.HealthHealthy
	switch {
	case len(issues) >= 2:
		health = domain.HealthCritical
	case len(issues) == 1:
		health = domain.HealthWarning
	}

	var uptime time.Duration
	if running {
		uptime = c.clock.Now().Sub(startedAt)
	}

	return domain.EngineStats{
		Running:   running,
		StartedAt: startedAt,
		Uptime:    uptime,
		Health:    health,
		Components: map[string]bool{
			"detector":          running,
			"liquidity_monitor": c.monitor.Running(),
			"oracle_validator":  c.validator.Sources() > 0,
		},
		EventCounts: counts,
		Issues:      messages,
	}
}

func (c *Coordinator) count(eventType string) {
	c.mu.Lock()
	c.counters[eventType]++
	c.mu.Unlock()
}

func (c *Coordinator) fanOut(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full, drop this event for it.
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, channel string, payload any) {
	if c.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := c.bus.Publish(ctx, channel, data); err != nil {
		c.logger.Debug("bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
