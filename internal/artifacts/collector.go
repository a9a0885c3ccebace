package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkgbench/pkgbench/internal/container"
	"github.com/pkgbench/pkgbench/internal/events"
)

// Fixed in-container paths left by the runner (external collaborator).
const (
	// RemoteLedgerPath is where the runner writes timing rows
	RemoteLedgerPath = "/root/bench/times.csv"

	// RemoteSentinelPath marks that the accelerator actually started
	RemoteSentinelPath = "/tmp/accel-started"
)

// RemoteReportPaths are the up-to-two HTML reports the runner may produce.
var RemoteReportPaths = []string{
	"/root/bench/report-1.html",
	"/root/bench/report-2.html",
}

// Collector pulls measurement artifacts out of an instance into the
// host-side result store.
type Collector struct {
	backend    container.Backend
	bus        *events.Bus
	resultsDir string
	ledgerPath string
}

// NewCollector creates a Collector writing into resultsDir, appending
// timing rows to the ledger at ledgerPath.
func NewCollector(backend container.Backend, bus *events.Bus, resultsDir, ledgerPath string) *Collector {
	return &Collector{
		backend:    backend,
		bus:        bus,
		resultsDir: resultsDir,
		ledgerPath: ledgerPath,
	}
}

// AppendLedger reads the in-container timing ledger and appends it
// verbatim to the host-side ledger. A missing in-container ledger is
// tolerated silently: nothing is appended.
func (c *Collector) AppendLedger(ctx context.Context, instance, target string) error {
	rows, err := c.backend.ExecCapture(ctx, instance, []string{"cat", RemoteLedgerPath})
	if err != nil {
		// The runner produced no measurement; not an error.
		return nil
	}
	if rows == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.ledgerPath), 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	f, err := os.OpenFile(c.ledgerPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(rows); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	c.bus.Emit(events.NewEvent(events.LedgerAppended, target).WithInstance(instance))
	return nil
}

// PullReports fetches the optional HTML reports, renaming each to embed
// the target name, timestamp, and a failure marker when applicable.
// Missing reports are tolerated silently.
func (c *Collector) PullReports(ctx context.Context, instance, target, stamp string, failed bool) {
	marker := ""
	if failed {
		marker = "-FAILED"
	}
	for i, remote := range RemoteReportPaths {
		local := filepath.Join(c.resultsDir,
			fmt.Sprintf("%s-%s%s-report-%d.html", target, stamp, marker, i+1))
		if err := c.backend.PullFile(ctx, instance, remote, local); err != nil {
			continue
		}
		c.bus.Emit(events.NewEvent(events.ReportCollected, target).WithPayload(local))
	}
}

// AcceleratorStarted reports whether the started-sentinel is present in
// the instance, proving the accelerator actually executed.
func (c *Collector) AcceleratorStarted(ctx context.Context, instance string) bool {
	status, err := c.backend.Exec(ctx, instance,
		[]string{"test", "-f", RemoteSentinelPath}, container.ExecOpts{})
	return err == nil && status == 0
}
