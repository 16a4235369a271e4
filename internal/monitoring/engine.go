// internal/monitoring/engine.go - periodic sweeps driving liveness, polling, and retention
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"watchtower/internal/database"
	"watchtower/internal/metrics"
)

// Options configures the engine's sweep cadences and retention policy.
type Options struct {
	HeartbeatSweepInterval time.Duration
	ServiceSweepInterval   time.Duration
	InternetCheckInterval  time.Duration
	UpstreamPingInterval   time.Duration
	CleanupInterval        time.Duration

	PollWorkers int

	HeartbeatRetention    time.Duration
	AlertRetention        time.Duration
	ServiceCheckRetention time.Duration
}

func (o *Options) setDefaults() {
	if o.HeartbeatSweepInterval <= 0 {
		o.HeartbeatSweepInterval = 60 * time.Second
	}
	if o.ServiceSweepInterval <= 0 {
		o.ServiceSweepInterval = 60 * time.Second
	}
	if o.InternetCheckInterval <= 0 {
		o.InternetCheckInterval = 5 * time.Minute
	}
	if o.UpstreamPingInterval <= 0 {
		o.UpstreamPingInterval = 5 * time.Minute
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 24 * time.Hour
	}
	if o.PollWorkers <= 0 {
		o.PollWorkers = 5
	}
	if o.HeartbeatRetention <= 0 {
		o.HeartbeatRetention = 30 * 24 * time.Hour
	}
	if o.AlertRetention <= 0 {
		o.AlertRetention = 90 * 24 * time.Hour
	}
	if o.ServiceCheckRetention <= 0 {
		o.ServiceCheckRetention = 30 * 24 * time.Hour
	}
}

// Engine runs the periodic sweeps. Each sweep kind runs in its own
// goroutine and executes synchronously on its ticker, so consecutive
// sweeps of the same kind never overlap; a slow sweep simply delays the
// next tick.
type Engine struct {
	store    database.Store
	alerts   *AlertManager
	liveness *LivenessEvaluator
	tracker  *ServiceTracker
	poller   *HTTPPoller
	internet *InternetWatchdog
	upstream *UpstreamPinger
	metrics  *metrics.Collector
	opts     Options
	nowFunc  func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(store database.Store, alerts *AlertManager, liveness *LivenessEvaluator, tracker *ServiceTracker, poller *HTTPPoller, internet *InternetWatchdog, upstream *UpstreamPinger, collector *metrics.Collector, opts Options) *Engine {
	opts.setDefaults()
	return &Engine{
		store:    store,
		alerts:   alerts,
		liveness: liveness,
		tracker:  tracker,
		poller:   poller,
		internet: internet,
		upstream: upstream,
		metrics:  collector,
		opts:     opts,
		nowFunc:  time.Now,
	}
}

// Start launches the sweep loops and returns immediately.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	logrus.WithFields(logrus.Fields{
		"heartbeat_sweep": e.opts.HeartbeatSweepInterval,
		"service_sweep":   e.opts.ServiceSweepInterval,
		"poll_workers":    e.opts.PollWorkers,
	}).Info("Starting monitoring engine")

	e.loop(ctx, e.opts.HeartbeatSweepInterval, "heartbeat", e.sweepHeartbeats)
	e.loop(ctx, e.opts.ServiceSweepInterval, "service", e.sweepServices)
	e.loop(ctx, e.opts.CleanupInterval, "cleanup", e.cleanup)
	if e.internet != nil {
		e.loop(ctx, e.opts.InternetCheckInterval, "internet", func(ctx context.Context) {
			if err := e.internet.Check(ctx); err != nil {
				logrus.WithError(err).Error("Internet check failed")
			}
		})
	}
	if e.upstream != nil {
		e.loop(ctx, e.opts.UpstreamPingInterval, "upstream", func(ctx context.Context) {
			if err := e.upstream.Ping(ctx); err != nil {
				logrus.WithError(err).Error("Upstream heartbeat failed")
			}
		})
	}
}

// Stop cancels the loops and waits for in-flight sweeps to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	logrus.Info("Monitoring engine stopped")
}

func (e *Engine) loop(ctx context.Context, interval time.Duration, name string, fn func(context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		// Run once at startup so a fresh process converges immediately.
		fn(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				fn(ctx)
				if e.metrics != nil {
					e.metrics.RecordSweep(name, time.Since(start))
				}
			}
		}
	}()
}

// sweepHeartbeats evaluates every host against a single reference
// instant. Per-host failures are logged and the sweep moves on; one
// broken host must not starve the rest.
func (e *Engine) sweepHeartbeats(ctx context.Context) {
	hosts, err := e.store.GetHosts(ctx)
	if err != nil {
		logrus.WithError(err).Error("Heartbeat sweep: failed to list hosts")
		return
	}

	ref := e.nowFunc()
	for i := range hosts {
		if ctx.Err() != nil {
			return
		}
		if err := e.evaluateHost(ctx, &hosts[i], ref); err != nil {
			logrus.WithError(err).WithField("host", hosts[i].Name).Error("Heartbeat sweep: host evaluation failed")
		}
	}
}

func (e *Engine) evaluateHost(ctx context.Context, listed *database.Host, ref time.Time) error {
	unlock := e.alerts.LockSubject(HostKey(listed.ID))
	defer unlock()

	// Re-read under the lock; a heartbeat may have landed since listing.
	host, err := e.store.GetHost(ctx, listed.ID)
	if err != nil {
		return err
	}

	overdue := e.liveness.IsOverdue(host, ref)
	switch {
	case overdue && host.Status != database.HostDown:
		if e.metrics != nil {
			e.metrics.RecordOverdue(host.Name)
		}
		_, err := e.alerts.ReportMissed(ctx, host)
		return err
	case !overdue && host.Status == database.HostDown:
		_, err := e.alerts.ReportRecovered(ctx, host)
		return err
	}
	return nil
}

// sweepServices polls every enabled service that is due, fanning the
// probes out over a bounded worker pool. Hysteresis updates run inside
// the tracker under the service lock.
func (e *Engine) sweepServices(ctx context.Context) {
	services, err := e.store.GetServices(ctx, true)
	if err != nil {
		logrus.WithError(err).Error("Service sweep: failed to list services")
		return
	}

	ref := e.nowFunc()
	due := make([]database.Service, 0, len(services))
	for _, svc := range services {
		if e.serviceDue(&svc, ref) {
			due = append(due, svc)
		}
	}
	if len(due) == 0 {
		return
	}

	jobs := make(chan *database.Service)
	var wg sync.WaitGroup
	for i := 0; i < e.opts.PollWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for svc := range jobs {
				e.pollService(ctx, svc)
			}
		}()
	}
	for i := range due {
		select {
		case <-ctx.Done():
		case jobs <- &due[i]:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()
}

func (e *Engine) serviceDue(svc *database.Service, ref time.Time) bool {
	if svc.LastChecked == nil {
		return true
	}
	freq := svc.PollFrequencySeconds
	if freq <= 0 {
		freq = 60
	}
	return ref.Sub(*svc.LastChecked) >= time.Duration(freq)*time.Second
}

func (e *Engine) pollService(ctx context.Context, svc *database.Service) {
	start := time.Now()
	result := e.poller.Poll(ctx, svc)
	if e.metrics != nil {
		status := "failure"
		if result.Success {
			status = "success"
		}
		e.metrics.RecordPoll(svc.Name, status, time.Since(start))
	}

	if err := e.tracker.RecordResult(ctx, svc, result); err != nil {
		logrus.WithError(err).WithField("service", svc.Name).Error("Service sweep: failed to record poll result")
	}
}

// cleanup prunes aged heartbeats, acknowledged-out alerts, and service
// checks per the retention policy.
func (e *Engine) cleanup(ctx context.Context) {
	now := e.nowFunc()

	if n, err := e.store.DeleteHeartbeatsBefore(ctx, now.Add(-e.opts.HeartbeatRetention)); err != nil {
		logrus.WithError(err).Error("Cleanup: failed to prune heartbeats")
	} else if n > 0 {
		logrus.WithField("count", n).Info("Pruned old heartbeats")
	}

	if n, err := e.store.DeleteAlertsBefore(ctx, now.Add(-e.opts.AlertRetention)); err != nil {
		logrus.WithError(err).Error("Cleanup: failed to prune alerts")
	} else if n > 0 {
		logrus.WithField("count", n).Info("Pruned old alerts")
	}

	if n, err := e.store.DeleteServiceChecksBefore(ctx, now.Add(-e.opts.ServiceCheckRetention)); err != nil {
		logrus.WithError(err).Error("Cleanup: failed to prune service checks")
	} else if n > 0 {
		logrus.WithField("count", n).Info("Pruned old service checks")
	}

	if e.metrics != nil {
		if err := e.metrics.UpdateSystemMetrics(ctx); err != nil {
			logrus.WithError(err).Debug("Failed to refresh system metrics")
		}
	}
}
