// Package diagnostics taps the message bus read-only to detect delegation
// boundary violations and review-round thrashing, the observability layer
// sitting alongside (not inside) the Cell Runtime.
//
// Adapted from the retrieved teacher codebase's internal/roles/auditor
// package: the same "allow-list of sender→receiver pairs per message kind,
// flag anything else as a boundary violation" detector and the same
// "consecutive corrective signals without improvement counts as thrashing"
// heuristic, both rebuilt against this runtime's bus.Channel taxonomy
// instead of the teacher's flat MessageType enum, and against Review rounds
// instead of the teacher's break_symmetry GGS directive.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/kernel/cellruntime/internal/bus"
)

// Anomaly is one detected defect kind.
type Anomaly string

const (
	AnomalyNone             Anomaly = "none"
	AnomalyBoundaryViolation Anomaly = "boundary_violation"
	AnomalyThrashing        Anomaly = "thrashing"
)

// Event is one audited bus message plus its verdict, the unit written to the
// JSONL trail.
type Event struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	FromCell  string    `json:"from_cell"`
	ToCell    string    `json:"to_cell"`
	Channel   bus.Channel `json:"channel"`
	Anomaly   Anomaly   `json:"anomaly"`
	Detail    string    `json:"detail,omitempty"`
}

// restrictedToSubordinateOrigin marks the channels on which a message between
// two cells of the same corporate rank is flagged as a boundary violation.
// This generalises the teacher's fixed sender/receiver role pairs, since this
// runtime's senders are recursively-spawned cells rather than a fixed role set.
var restrictedToSubordinateOrigin = map[bus.Channel]bool{
	bus.ChannelProgress:    true, // children report progress upward, never peer-to-peer
	bus.ChannelEscalate:    true,
	bus.ChannelInsight:     true,
	bus.ChannelHealRequest: true,
}

// Monitor is the bus-tap-driven diagnostics loop.
type Monitor struct {
	b        *bus.Bus
	tap      <-chan bus.Message
	logPath  string
	statsPath string

	mu                 sync.Mutex
	logFile            *os.File
	thrashCounts       map[string]int // cellID -> consecutive FEEDBACK rounds without acceptance
	boundaryViolations int
	anomalies          int
}

// New builds a Monitor against a dedicated tap (bus.NewTap()).
func New(b *bus.Bus, tap <-chan bus.Message, logPath, statsPath string) *Monitor {
	return &Monitor{
		b:            b,
		tap:          tap,
		logPath:      logPath,
		statsPath:    statsPath,
		thrashCounts: make(map[string]int),
	}
}

// Run blocks consuming the tap until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	f, err := os.OpenFile(m.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[diagnostics] could not open %s: %v", m.logPath, err)
		return
	}
	m.logFile = f
	defer f.Close()

	for {
		select {
		case <-ctx.Done():
			m.saveStats()
			return
		case msg, ok := <-m.tap:
			if !ok {
				return
			}
			m.process(msg)
		}
	}
}

func (m *Monitor) process(msg bus.Message) {
	anomaly := AnomalyNone
	var detail string

	if restrictedToSubordinateOrigin[msg.Channel] && msg.From.Level == msg.To.Level {
		anomaly = AnomalyBoundaryViolation
		detail = fmt.Sprintf("peer-level %s on upward-only channel %s", msg.From.Level, msg.Channel)
	}

	if msg.Channel == bus.ChannelFeedback {
		m.mu.Lock()
		m.thrashCounts[msg.To.CellID]++
		count := m.thrashCounts[msg.To.CellID]
		m.mu.Unlock()
		const thrashThreshold = 3
		if count >= thrashThreshold {
			anomaly = AnomalyThrashing
			detail = fmt.Sprintf("cell %s received %d consecutive FEEDBACK rounds without acceptance", msg.To.CellID, count)
		}
	}
	if msg.Channel == bus.ChannelHealResult {
		m.mu.Lock()
		delete(m.thrashCounts, msg.To.CellID)
		m.mu.Unlock()
	}

	m.mu.Lock()
	if anomaly == AnomalyBoundaryViolation {
		m.boundaryViolations++
	}
	if anomaly != AnomalyNone {
		m.anomalies++
	}
	m.mu.Unlock()

	m.writeEvent(Event{
		EventID:   msg.ID,
		Timestamp: msg.Timestamp,
		FromCell:  msg.From.CellID,
		ToCell:    msg.To.CellID,
		Channel:   msg.Channel,
		Anomaly:   anomaly,
		Detail:    detail,
	})
	if anomaly != AnomalyNone {
		m.saveStats()
	}
}

func (m *Monitor) writeEvent(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(m.logFile, "%s\n", data)
}

type persistedStats struct {
	BoundaryViolations int `json:"boundary_violations"`
	Anomalies          int `json:"anomalies"`
}

func (m *Monitor) saveStats() {
	m.mu.Lock()
	ps := persistedStats{BoundaryViolations: m.boundaryViolations, Anomalies: m.anomalies}
	m.mu.Unlock()
	data, err := json.Marshal(ps)
	if err != nil {
		return
	}
	_ = os.WriteFile(m.statsPath, data, 0o644)
}

// Snapshot returns the current violation/anomaly counters, for tests and for
// an operator CLI to print without reading the JSONL trail.
func (m *Monitor) Snapshot() (boundaryViolations, anomalies int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boundaryViolations, m.anomalies
}
