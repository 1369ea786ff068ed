package diagnostics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kernel/cellruntime/internal/bus"
	"github.com/kernel/cellruntime/internal/kerneltypes"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	dir := t.TempDir()
	return New(nil, nil, filepath.Join(dir, "trail.jsonl"), filepath.Join(dir, "stats.json"))
}

// openLogOrFail opens the monitor's log file directly, mirroring what Run
// does, so process() can be exercised without running the full tap loop.
func openLogOrFail(t *testing.T, m *Monitor) {
	t.Helper()
	f, err := os.OpenFile(m.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("could not open log file: %v", err)
	}
	m.logFile = f
	t.Cleanup(func() { f.Close() })
}

// --- boundary violation detection ---

func TestProcess_FlagsPeerLevelOnUpwardOnlyChannel(t *testing.T) {
	// process flags a boundary_violation when two peer-level cells exchange a subordinate-only channel message
	m := newTestMonitor(t)
	openLogOrFail(t, m)

	msg := bus.Message{
		ID:      "m1",
		From:    kerneltypes.Identity{CellID: "a", Level: kerneltypes.LevelManager},
		To:      kerneltypes.Identity{CellID: "b", Level: kerneltypes.LevelManager},
		Channel: bus.ChannelProgress,
	}
	m.process(msg)

	violations, anomalies := m.Snapshot()
	if violations != 1 {
		t.Errorf("boundary violations = %d, want 1", violations)
	}
	if anomalies != 1 {
		t.Errorf("anomalies = %d, want 1", anomalies)
	}
}

func TestProcess_AllowsSubordinateToSuperiorOnRestrictedChannel(t *testing.T) {
	// process does not flag a subordinate-to-superior message on a restricted channel
	m := newTestMonitor(t)
	openLogOrFail(t, m)

	msg := bus.Message{
		ID:      "m2",
		From:    kerneltypes.Identity{CellID: "child", Level: kerneltypes.LevelStaff},
		To:      kerneltypes.Identity{CellID: "parent", Level: kerneltypes.LevelManager},
		Channel: bus.ChannelProgress,
	}
	m.process(msg)

	violations, _ := m.Snapshot()
	if violations != 0 {
		t.Errorf("boundary violations = %d, want 0", violations)
	}
}

func TestProcess_IgnoresUnrestrictedChannelBetweenPeers(t *testing.T) {
	// process does not flag peer-level messages on channels with no subordinate-origin restriction
	m := newTestMonitor(t)
	openLogOrFail(t, m)

	msg := bus.Message{
		ID:      "m3",
		From:    kerneltypes.Identity{CellID: "a", Level: kerneltypes.LevelManager},
		To:      kerneltypes.Identity{CellID: "b", Level: kerneltypes.LevelManager},
		Channel: bus.ChannelShare,
	}
	m.process(msg)

	violations, _ := m.Snapshot()
	if violations != 0 {
		t.Errorf("boundary violations = %d, want 0", violations)
	}
}

// --- thrashing detection ---

func TestProcess_FlagsThrashingAtThirdConsecutiveFeedback(t *testing.T) {
	// process flags thrashing once a cell has received 3 consecutive FEEDBACK messages
	m := newTestMonitor(t)
	openLogOrFail(t, m)

	for i := 0; i < 2; i++ {
		m.process(bus.Message{ID: "f", Channel: bus.ChannelFeedback, To: kerneltypes.Identity{CellID: "child-1"}})
	}
	_, anomaliesBefore := m.Snapshot()
	if anomaliesBefore != 0 {
		t.Fatalf("expected no anomaly before the 3rd FEEDBACK, got %d", anomaliesBefore)
	}

	m.process(bus.Message{ID: "f3", Channel: bus.ChannelFeedback, To: kerneltypes.Identity{CellID: "child-1"}})
	_, anomaliesAfter := m.Snapshot()
	if anomaliesAfter != 1 {
		t.Errorf("expected 1 anomaly after the 3rd consecutive FEEDBACK, got %d", anomaliesAfter)
	}
}

func TestProcess_HealResultResetsThrashCounter(t *testing.T) {
	// process resets a cell's consecutive-feedback count once a HEAL_RESULT arrives
	m := newTestMonitor(t)
	openLogOrFail(t, m)

	m.process(bus.Message{ID: "f1", Channel: bus.ChannelFeedback, To: kerneltypes.Identity{CellID: "child-1"}})
	m.process(bus.Message{ID: "f2", Channel: bus.ChannelFeedback, To: kerneltypes.Identity{CellID: "child-1"}})
	m.process(bus.Message{ID: "hr", Channel: bus.ChannelHealResult, To: kerneltypes.Identity{CellID: "child-1"}})
	m.process(bus.Message{ID: "f3", Channel: bus.ChannelFeedback, To: kerneltypes.Identity{CellID: "child-1"}})

	_, anomalies := m.Snapshot()
	if anomalies != 0 {
		t.Errorf("expected the counter to have been reset, got %d anomalies", anomalies)
	}
}

// --- Snapshot / stats persistence ---

func TestSnapshot_ZeroOnFreshMonitor(t *testing.T) {
	// Snapshot returns (0, 0) for a monitor that has processed nothing
	m := newTestMonitor(t)
	violations, anomalies := m.Snapshot()
	if violations != 0 || anomalies != 0 {
		t.Errorf("got (%d, %d), want (0, 0)", violations, anomalies)
	}
}
