package daemon

import (
	"context"
	"time"

	"github.com/matheus3301/smartcart/internal/status"
	"go.uber.org/zap"
)

const defaultProbeInterval = 10 * time.Second

// Pinger reports whether the backend database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober polls the database and moves the daemon between Ready and Degraded.
type Prober struct {
	db       Pinger
	machine  *status.Machine
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewProber(db Pinger, machine *status.Machine, logger *zap.Logger, interval time.Duration) *Prober {
	return &Prober{
		db:       db,
		machine:  machine,
		logger:   logger,
		interval: interval,
	}
}

// Start begins polling until Stop.
func (p *Prober) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx)
}

// Stop stops the polling loop and waits for it to exit.
func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *Prober) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check pings once and records the outcome.
func (p *Prober) Check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	if err := p.db.Ping(ctx); err != nil {
		if p.machine.Current() != status.Degraded {
			p.logger.Warn("database unreachable", zap.Error(err))
		}
		_ = p.machine.Transition(status.Degraded, err.Error())
		return
	}
	if p.machine.Current() != status.Ready {
		p.logger.Info("database reachable")
	}
	_ = p.machine.Transition(status.Ready, "")
}
