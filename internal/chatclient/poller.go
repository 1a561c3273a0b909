package chatclient

import (
	"context"
	"io"
	"log"
	"time"
)

const DefaultPollInterval = 3 * time.Second

// Poller refreshes a Session on a fixed interval until its context is
// cancelled.
type Poller struct {
	session  *Session
	interval time.Duration
	log      *log.Logger

	// OnUpdate is called with the merged view after a refresh that changed it.
	OnUpdate func([]Entry)
	// OnError is called when a refresh fails. Polling continues.
	OnError func(error)
}

func NewPoller(session *Session, interval time.Duration, logger *log.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Poller{
		session:  session,
		interval: interval,
		log:      logger,
	}
}

// Run refreshes immediately and then on every tick. Updates from sends made
// through the session are delivered between ticks as well.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer func() {
		ticker.Stop()
		p.log.Println("poller exiting")
	}()

	p.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		case <-p.session.Changed():
			p.emit()
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	if err := p.session.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Println("refresh:", err)
		if p.OnError != nil {
			p.OnError(err)
		}
	}
}

func (p *Poller) emit() {
	if p.OnUpdate != nil {
		p.OnUpdate(p.session.Messages())
	}
}
