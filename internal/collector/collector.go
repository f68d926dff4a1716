// Package collector polls SNMP targets on a fixed interval and writes
// the values it reads as signal samples.
//
// Each target is polled on its own goroutine. All writes go through a
// Setter, normally the TCP client, so the storage stack has a single
// writer regardless of how many targets are polled.
package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"golang.org/x/sync/errgroup"

	"github.com/keleshev/tau/config"
	"github.com/keleshev/tau/internal/logging"
)

var log = logging.Component("collector")

// Setter is the write side of the store the collector feeds.
type Setter interface {
	Set(values map[string]any) error
}

// Target describes one SNMP target and the signals read from it.
type Target struct {
	Host      string
	Port      uint16
	Community string
	Interval  time.Duration

	// Signals maps signal names to the OIDs they are read from.
	Signals map[string]string

	Timeout time.Duration
	Retries int
}

// Collector polls a set of targets.
type Collector struct {
	setter  Setter
	targets []Target
}

// New creates a collector feeding the given setter.
func New(setter Setter, targets []Target) *Collector {
	return &Collector{setter: setter, targets: targets}
}

// Run polls all targets until the context is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	if len(c.targets) == 0 {
		return fmt.Errorf("no targets configured")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, target := range c.targets {
		target := target
		g.Go(func() error {
			c.pollLoop(ctx, target)
			return nil
		})
	}
	return g.Wait()
}

// pollLoop polls one target on its interval. The first poll happens
// immediately.
func (c *Collector) pollLoop(ctx context.Context, target Target) {
	interval := target.Interval
	if interval <= 0 {
		interval = config.DefaultCollectInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.pollTarget(target)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollTarget(target)
		}
	}
}

// pollTarget reads all of a target's OIDs in one GET and writes the
// values that came back. A failed poll is logged and skipped; the next
// tick retries.
func (c *Collector) pollTarget(target Target) {
	values, err := c.poll(target)
	if err != nil {
		log.Warn("poll failed", "host", target.Host, "error", err)
		return
	}
	if len(values) == 0 {
		return
	}
	if err := c.setter.Set(values); err != nil {
		log.Warn("write failed", "host", target.Host, "error", err)
	}
}

func (c *Collector) poll(target Target) (map[string]any, error) {
	snmp := newClient(target)
	if err := snmp.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer snmp.Conn.Close()

	oids := make([]string, 0, len(target.Signals))
	byOID := make(map[string]string, len(target.Signals))
	for signal, oid := range target.Signals {
		oid = normalizeOID(oid)
		oids = append(oids, oid)
		byOID[oid] = signal
	}

	pdu, err := snmp.Get(oids)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}

	values := make(map[string]any)
	for _, variable := range pdu.Variables {
		signal, ok := byOID[normalizeOID(variable.Name)]
		if !ok {
			continue
		}
		value, err := convertPDU(variable)
		if err != nil {
			log.Warn("skipping variable", "host", target.Host,
				"signal", signal, "error", err)
			continue
		}
		values[signal] = value
	}
	return values, nil
}

func newClient(target Target) *gosnmp.GoSNMP {
	port := target.Port
	if port == 0 {
		port = config.DefaultSNMPPort
	}
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = config.DefaultSNMPTimeout
	}
	retries := target.Retries
	if retries <= 0 {
		retries = config.DefaultSNMPRetries
	}
	return &gosnmp.GoSNMP{
		Target:    target.Host,
		Port:      port,
		Version:   gosnmp.Version2c,
		Community: target.Community,
		Timeout:   timeout,
		Retries:   retries,
	}
}

// normalizeOID strips the optional leading dot so configured OIDs and
// the OIDs in responses compare equal.
func normalizeOID(oid string) string {
	return strings.TrimPrefix(oid, ".")
}

// convertPDU extracts a sample value from an SNMP variable.
func convertPDU(variable gosnmp.SnmpPDU) (any, error) {
	switch variable.Type {
	case gosnmp.Counter32, gosnmp.Counter64, gosnmp.Uinteger32, gosnmp.Gauge32:
		return float64(gosnmp.ToBigInt(variable.Value).Uint64()), nil

	case gosnmp.Integer:
		return float64(variable.Value.(int)), nil

	case gosnmp.TimeTicks:
		return float64(gosnmp.ToBigInt(variable.Value).Uint64()), nil

	case gosnmp.OctetString:
		return string(variable.Value.([]byte)), nil

	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return nil, fmt.Errorf("OID %s not found", variable.Name)

	default:
		return nil, fmt.Errorf("unsupported type %v for OID %s",
			variable.Type, variable.Name)
	}
}
