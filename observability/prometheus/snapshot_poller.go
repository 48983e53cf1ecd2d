package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-execctx/core"
	"github.com/alphadose/haxmap"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SnapshotPoller periodically exports executor Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval  time.Duration
	executors *haxmap.Map[string, core.StatsProvider]

	threads   *prom.GaugeVec
	pending   *prom.GaugeVec
	active    *prom.GaugeVec
	completed *prom.GaugeVec
	rejected  *prom.GaugeVec
	running   *prom.GaugeVec
	closed    *prom.GaugeVec

	stateMu     sync.Mutex
	pollRunning bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "execctx"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      name,
			Help:      help,
		}, []string{"executor", "type"})
	}

	p := &SnapshotPoller{
		interval:  interval,
		executors: haxmap.New[string, core.StatsProvider](),
		threads:   gauge("threads", "Live threads per executor."),
		pending:   gauge("pending", "Queued tasks per executor."),
		active:    gauge("active", "Running tasks per executor."),
		completed: gauge("completed", "Completed task count snapshot."),
		rejected:  gauge("rejected", "Rejected task count snapshot."),
		running:   gauge("running", "Executor running state (1=running, 0=stopped)."),
		closed:    gauge("closed", "Executor closed state (1=closed, 0=open)."),
	}

	for _, g := range []**prom.GaugeVec{&p.threads, &p.pending, &p.active, &p.completed, &p.rejected, &p.running, &p.closed} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// Add adds or replaces a provider under name; an empty name uses Stats().Name.
func (p *SnapshotPoller) Add(name string, provider core.StatsProvider) {
	if p == nil || provider == nil {
		return
	}
	if name == "" {
		name = provider.Stats().Name
	}
	p.executors.Set(normalizeLabel(name, "executor"), provider)
}

// Remove stops exporting the provider registered under name.
func (p *SnapshotPoller) Remove(name string) {
	if p == nil {
		return
	}
	p.executors.Del(name)
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.pollRunning {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.pollRunning = true
	done := p.done
	p.stateMu.Unlock()

	go p.loop(pollCtx, done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.pollRunning {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.pollRunning = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()

	cancel()
	<-done
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce exports one snapshot of every registered provider.
func (p *SnapshotPoller) CollectOnce() {
	p.executors.ForEach(func(name string, provider core.StatsProvider) bool {
		stats := provider.Stats()
		typeLabel := normalizeLabel(stats.Type, "unknown")
		p.threads.WithLabelValues(name, typeLabel).Set(float64(stats.Threads))
		p.pending.WithLabelValues(name, typeLabel).Set(float64(stats.Pending))
		p.active.WithLabelValues(name, typeLabel).Set(float64(stats.Active))
		p.completed.WithLabelValues(name, typeLabel).Set(float64(stats.Completed))
		p.rejected.WithLabelValues(name, typeLabel).Set(float64(stats.Rejected))
		p.running.WithLabelValues(name, typeLabel).Set(boolGauge(stats.Running))
		p.closed.WithLabelValues(name, typeLabel).Set(boolGauge(stats.Closed))
		return true
	})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
