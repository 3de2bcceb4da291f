package transcriber

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sridhar-mani/whisper-web-transcriber/internal/observe"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/transcript"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/engine"
)

// DefaultPollInterval is the cadence at which new engine output is drained.
const DefaultPollInterval = 100 * time.Millisecond

// PollerConfig configures a [Poller].
type PollerConfig struct {
	// Instance is polled for newly recognised text.
	Instance engine.Instance

	// Interval is the polling cadence. Zero means [DefaultPollInterval].
	Interval time.Duration

	// Recording is the shared span flag. The loop exits within one tick of it
	// going false.
	Recording *atomic.Bool

	// Refinery applies vocabulary corrections before text reaches the
	// observer. Optional.
	Refinery *transcript.Refinery

	// Observers receives the drained transcript.
	Observers Observers

	// Metrics records emitted transcripts. Nil means [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Poller drains newly recognised text from the engine on a fixed cadence and
// forwards it to the transcription observer. Output of one character or less
// is treated as recognition noise and skipped.
type Poller struct {
	instance  engine.Instance
	interval  time.Duration
	recording *atomic.Bool
	refinery  *transcript.Refinery
	obs       Observers
	met       *observe.Metrics

	mu       sync.Mutex
	lastText string

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewPoller builds a poller. Start must be called to begin draining.
func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	met := cfg.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}
	return &Poller{
		instance:  cfg.Instance,
		interval:  interval,
		recording: cfg.Recording,
		refinery:  cfg.Refinery,
		obs:       cfg.Observers,
		met:       met,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start begins the polling loop in a background goroutine.
func (p *Poller) Start() {
	go p.loop()
}

// Stop halts polling and waits for the loop to exit. Safe to call repeatedly
// and after the loop already wound down on its own.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	<-p.stopped
}

// LastText returns the most recent transcript forwarded to the observer, or
// "" when nothing was emitted yet.
func (p *Poller) LastText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastText
}

func (p *Poller) loop() {
	defer close(p.stopped)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if !p.recording.Load() {
				return
			}
			text := p.instance.Transcript()
			if len(text) <= 1 {
				continue
			}

			if p.refinery != nil {
				refined, corrections := p.refinery.Refine(text)
				if len(corrections) > 0 {
					slog.Debug("vocabulary corrections applied", "count", len(corrections))
				}
				text = refined
			}

			p.mu.Lock()
			p.lastText = text
			p.mu.Unlock()

			p.obs.transcription(text)
			p.met.RecordTranscript(ctx, false)
		}
	}
}
