// Package output relays tagged statsd records to an upstream collector.
package output

import (
	"net"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/docker/go-events"
	"github.com/pkg/errors"

	"github.com/minyk/dcos-metrics/log"
	"github.com/minyk/dcos-metrics/reader"
)

// maxChunkSize is the largest UDP payload sent upstream: the common
// ethernet MTU with IP and UDP headers subtracted.
const maxChunkSize = 1432

// DefaultFlushInterval bounds how long a record waits before going out
// when traffic is too light to fill a chunk.
const DefaultFlushInterval = time.Second

// Config carries the collector connection settings.
type Config struct {
	// Address is the collector's host:port.
	Address string

	// FlushInterval overrides DefaultFlushInterval when positive.
	FlushInterval time.Duration

	// QueueDepth bounds records waiting for the flush loop. Overflow is
	// dropped and counted, never blocking a reader.
	QueueDepth int
}

// Forwarder batches statsd records and relays them to a collector over
// UDP. It implements events.Sink so reader pipelines can write straight
// into it.
type Forwarder struct {
	conn     net.Conn
	clock    clock.Clock
	interval time.Duration
	queue    chan string

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

var _ events.Sink = (*Forwarder)(nil)

// NewForwarder dials the collector and starts the flush loop.
func NewForwarder(cfg Config, clk clock.Clock) (*Forwarder, error) {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 4096
	}

	conn, err := net.Dial("udp", cfg.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing collector %s", cfg.Address)
	}

	f := &Forwarder{
		conn:     conn,
		clock:    clk,
		interval: cfg.FlushInterval,
		queue:    make(chan string, cfg.QueueDepth),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go f.run()

	return f, nil
}

// Write accepts a reader.Record or a plain statsd line. A full queue drops
// the record rather than blocking the caller.
func (f *Forwarder) Write(event events.Event) error {
	var line string
	switch v := event.(type) {
	case reader.Record:
		line = v.Line
	case string:
		line = v
	default:
		return errors.Errorf("unsupported event type %T", event)
	}

	select {
	case <-f.closed:
		return events.ErrSinkClosed
	default:
	}

	select {
	case f.queue <- line:
	default:
		droppedRecords.Inc()
	}

	return nil
}

// Close flushes whatever has been queued and stops the loop.
func (f *Forwarder) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
	})
	<-f.done

	return nil
}

func (f *Forwarder) run() {
	defer close(f.done)
	defer f.conn.Close()

	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()

	var (
		batch []string
		size  int
	)

	flush := func() {
		if len(batch) == 0 {
			return
		}

		payload := strings.Join(batch, "\n")
		if _, err := f.conn.Write([]byte(payload)); err != nil {
			log.L.WithError(err).Warn("failed to forward statsd batch")
		} else {
			flushedBatches.Inc()
			forwardedRecords.Inc(float64(len(batch)))
		}

		batch = batch[:0]
		size = 0
	}

	add := func(line string) {
		if len(batch) > 0 && size+1+len(line) > maxChunkSize {
			flush()
		}
		if len(batch) == 0 {
			size = len(line)
		} else {
			size += 1 + len(line)
		}
		batch = append(batch, line)
	}

	for {
		// Drain ahead of the ticker so a tick flushes everything queued
		// before it.
		select {
		case line := <-f.queue:
			add(line)
			continue
		default:
		}

		select {
		case line := <-f.queue:
			add(line)
		case <-ticker.C():
			flush()
		case <-f.closed:
			for {
				select {
				case line := <-f.queue:
					add(line)
				default:
					flush()
					return
				}
			}
		}
	}
}
