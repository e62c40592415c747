// Package publish re-renders every monitor when Home Assistant state changes
// and pushes the badge and card views to MQTT.
package publish

import (
	"encoding/json"
	"sync"
	"time"

	"devicemonitor/internal/clock"
	"devicemonitor/internal/metrics"
	"devicemonitor/internal/monitor"
	"devicemonitor/internal/registry"

	"go.uber.org/zap"
)

// StatusTopic is the availability topic for a prefix
func StatusTopic(prefix string) string {
	return prefix + "/status"
}

// BadgeTopic is the retained badge topic of a monitor
func BadgeTopic(prefix, monitorName string) string {
	return prefix + "/" + monitorName + "/badge"
}

// CardTopic is the retained card topic of a monitor
func CardTopic(prefix, monitorName string) string {
	return prefix + "/" + monitorName + "/card"
}

// Publisher renders monitors after snapshot changes. Changes arriving within
// the debounce window of the first one are coalesced into a single render of
// the newest snapshot.
type Publisher struct {
	monitors []*monitor.Monitor
	broker   Broker
	recorder *metrics.Recorder
	clock    clock.Clock
	debounce time.Duration
	prefix   string
	logger   *zap.Logger

	renderMu sync.Mutex

	mu      sync.Mutex
	latest  *registry.Snapshot
	pending clock.Timer
	sent    map[string]string
	stopped bool
}

// Options configure a Publisher. Broker and Recorder are optional.
type Options struct {
	Broker   Broker
	Recorder *metrics.Recorder
	Clock    clock.Clock
	Debounce time.Duration
	Prefix   string
}

// NewPublisher creates a publisher for the given monitors
func NewPublisher(monitors []*monitor.Monitor, opts Options, logger *zap.Logger) *Publisher {
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	return &Publisher{
		monitors: monitors,
		broker:   opts.Broker,
		recorder: opts.Recorder,
		clock:    opts.Clock,
		debounce: opts.Debounce,
		prefix:   opts.Prefix,
		logger:   logger.Named("publisher"),
		sent:     make(map[string]string),
	}
}

// Notify schedules a render of snap. It is a state.SnapshotHandler.
func (p *Publisher) Notify(snap *registry.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.latest = snap
	if p.pending != nil {
		return
	}
	if p.debounce <= 0 {
		go p.flush()
		return
	}
	p.pending = p.clock.AfterFunc(p.debounce, p.flush)
}

// flush renders the newest snapshot. latest is read under renderMu so the
// final render to finish always sees the final Notify.
func (p *Publisher) flush() {
	p.renderMu.Lock()
	defer p.renderMu.Unlock()

	p.mu.Lock()
	snap := p.latest
	p.pending = nil
	stopped := p.stopped
	p.mu.Unlock()

	if snap == nil || stopped {
		return
	}
	p.render(snap)
}

// Render renders every monitor for snap right away, records metrics and
// publishes views whose payload changed since the last publish
func (p *Publisher) Render(snap *registry.Snapshot) {
	p.renderMu.Lock()
	defer p.renderMu.Unlock()
	p.render(snap)
}

// render expects renderMu to be held
func (p *Publisher) render(snap *registry.Snapshot) {
	for _, m := range p.monitors {
		r := m.Render(snap)

		if p.recorder != nil {
			p.recorder.ObserveMonitor(m.Name(), string(m.Config().EntityType),
				r.Badge.AlertCount, r.Result.TotalDevices, len(r.Result.UnavailableDevices))
		}

		p.logger.Debug("Rendered monitor",
			zap.String("monitor", m.Name()),
			zap.Int("alerts", r.Badge.AlertCount),
			zap.Int("total", r.Result.TotalDevices))

		if p.broker == nil {
			continue
		}
		p.publishJSON(BadgeTopic(p.prefix, m.Name()), r.Badge)
		p.publishJSON(CardTopic(p.prefix, m.Name()), r.Card)
	}
}

func (p *Publisher) publishJSON(topic string, view interface{}) {
	payload, err := json.Marshal(view)
	if err != nil {
		p.logger.Error("Failed to marshal view", zap.String("topic", topic), zap.Error(err))
		return
	}

	p.mu.Lock()
	unchanged := p.sent[topic] == string(payload)
	p.mu.Unlock()
	if unchanged {
		return
	}

	if err := p.broker.Publish(topic, payload, true); err != nil {
		p.logger.Error("Failed to publish view", zap.String("topic", topic), zap.Error(err))
		return
	}

	p.mu.Lock()
	p.sent[topic] = string(payload)
	p.mu.Unlock()
}

// Stop cancels any pending render and closes the broker
func (p *Publisher) Stop() {
	p.mu.Lock()
	p.stopped = true
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
	p.mu.Unlock()

	if p.broker != nil {
		p.broker.Close()
	}
}
