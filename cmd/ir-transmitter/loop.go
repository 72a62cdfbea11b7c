package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/ir-transmitter/internal/freq"
	"github.com/sweeney/ir-transmitter/internal/mqtt"
	"github.com/sweeney/ir-transmitter/internal/status"
	"github.com/sweeney/ir-transmitter/internal/transmitter"
	"github.com/sweeney/ir-transmitter/internal/web"
)

// Ticks between status refreshes when nothing else changes.
const statusRefreshTicks = 10000

// How long shutdown waits for an in-flight burst to complete.
const drainTimeout = 2 * time.Second

var errStopped = errors.New("transmitter stopped")

// command is a control request executed on the run loop goroutine, which
// owns the transmitter.
type command struct {
	apply func(tx *transmitter.Transmitter) error
	reply chan error
}

// loopController implements web.Controller by forwarding to the run loop.
type loopController struct {
	cmds  chan<- command
	done  <-chan struct{}
	table freq.Table
}

func (c *loopController) do(fn func(tx *transmitter.Transmitter) error) error {
	reply := make(chan error, 1)
	select {
	case c.cmds <- command{apply: fn, reply: reply}:
	case <-c.done:
		return errStopped
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return errStopped
	}
}

func (c *loopController) Run() error {
	return c.do(func(tx *transmitter.Transmitter) error {
		tx.Run()
		return nil
	})
}

func (c *loopController) SetFrequency(n int) error {
	if !c.table.Contains(n) {
		return fmt.Errorf("frequency %d out of range (0-%d): %w", n, c.table.Len()-1, web.ErrInvalid)
	}
	return c.do(func(tx *transmitter.Transmitter) error {
		tx.SetFrequencyNumber(uint16(n))
		return nil
	})
}

func (c *loopController) SetContinuous(on bool) error {
	return c.do(func(tx *transmitter.Transmitter) error {
		tx.SetContinuousMode(on)
		return nil
	})
}

// loop advances the transmitter once per tick and handles everything else
// that touches it: control commands, one-shot re-arming, heartbeats and
// shutdown.
type loop struct {
	tx         *transmitter.Transmitter
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	now        func() time.Time
	after      func(time.Duration) <-chan time.Time
	debug      bool

	tick      <-chan time.Time
	cmds      <-chan command
	oneshot   <-chan time.Time
	heartbeat <-chan time.Time
	sig       <-chan os.Signal

	sinceRefresh int
	writeErrors  int
}

func (l *loop) run() error {
	for {
		select {
		case <-l.tick:
			l.step()

		case cmd := <-l.cmds:
			err := cmd.apply(l.tx)
			l.refresh()
			cmd.reply <- err

		case <-l.oneshot:
			if !l.tx.Running() {
				l.tx.Run()
			}

		case <-l.heartbeat:
			l.refresh()
			snap := l.tracker.Snapshot()
			hbEvent := mqtt.SystemEvent{
				Timestamp:  snap.Now,
				Event:      "HEARTBEAT",
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := l.publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("failed to publish heartbeat: %v", err)
			}

		case s := <-l.sig:
			reason := signalName(s)
			log.Printf("received %s, shutting down", reason)
			l.drain()

			l.refresh()
			snap := l.tracker.Snapshot()
			shutdownEvent := mqtt.SystemEvent{
				Timestamp:  snap.Now,
				Event:      "SHUTDOWN",
				Reason:     reason,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
			}
			if err := l.publisher.PublishSystem(shutdownEvent); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			}
			return nil
		}
	}
}

// step ticks the transmitter once and publishes any burst events.
func (l *loop) step() {
	events := l.tx.Tick()
	l.sinceRefresh++
	if len(events) == 0 {
		if l.sinceRefresh >= statusRefreshTicks {
			l.refresh()
		}
		return
	}

	ts := l.now()
	for _, e := range events {
		e.Timestamp = ts
		if l.debug {
			log.Printf("%s frequency=%d period=%d timer=%d", e.Type, e.Frequency, e.Period, e.Timer)
		}
		if err := l.publisher.Publish(e); err != nil {
			log.Printf("mqtt publish error: %v", err)
		}
	}

	if n := l.tx.Counts().WriteErrors; n > l.writeErrors {
		log.Printf("gpio: %d write errors, last: %v", n-l.writeErrors, l.tx.LastWriteError())
		l.writeErrors = n
	}
	l.refresh()
}

// drain stops continuous mode and keeps ticking until the current burst
// (if any) finishes, so the output is never left mid-cycle.
func (l *loop) drain() {
	l.tx.SetContinuousMode(false)
	if !l.tx.Running() {
		return
	}
	timeout := l.after(drainTimeout)
	for l.tx.Running() {
		select {
		case <-l.tick:
			l.step()
		case <-timeout:
			log.Printf("burst still running after %v, stopping anyway", drainTimeout)
			return
		case <-l.sig:
			return
		}
	}
}

func (l *loop) refresh() {
	l.sinceRefresh = 0
	l.tracker.Update(l.tx)
	l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return s.String()
	}
}
