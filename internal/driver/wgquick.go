package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/veilnet/veil/internal/wgcfg"
)

// toolTimeout bounds every external invocation. The tool normally finishes
// in well under a second; a hung elevation prompt should not stall the state
// machine forever.
const toolTimeout = 30 * time.Second

// elevationHelpers are tried in order when the tool needs root.
var elevationHelpers = [][]string{
	{"pkexec"},
	{"sudo", "-n"},
}

// WGQuick drives a pre-installed wg-quick binary. It renders the config to a
// file, shells out to bring the interface up or down, and reads transfer
// stats from wg's query subcommand.
type WGQuick struct {
	log       *slog.Logger
	configDir string

	mu sync.Mutex
	up bool
}

// NewWGQuick creates an external-tool backend writing configs under dir.
func NewWGQuick(log *slog.Logger, dir string) *WGQuick {
	return &WGQuick{log: log, configDir: dir}
}

func (d *WGQuick) configPath() string {
	return filepath.Join(d.configDir, TunnelName()+".conf")
}

// Connect renders the config and invokes `wg-quick up`.
func (d *WGQuick) Connect(ctx context.Context, cfg *wgcfg.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(d.configDir, 0o700); err != nil {
		return &TunnelError{Op: "prepare config dir", Err: err}
	}
	path := d.configPath()
	if err := os.WriteFile(path, []byte(cfg.Render()), 0o600); err != nil {
		return &TunnelError{Op: "write config", Err: err}
	}

	if err := d.runElevated(ctx, "wg-quick", "up", path); err != nil {
		os.Remove(path)
		return err
	}

	d.up = true
	d.log.Info("external tunnel up", "interface", TunnelName())
	return nil
}

// Disconnect invokes `wg-quick down` and removes the rendered config. With
// no tunnel up it is a no-op.
func (d *WGQuick) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.up {
		return nil
	}

	path := d.configPath()
	err := d.runElevated(ctx, "wg-quick", "down", path)
	os.Remove(path)
	d.up = false

	if err != nil {
		return err
	}
	d.log.Info("external tunnel down", "interface", TunnelName())
	return nil
}

// TransferStats queries `wg show <iface> transfer`. Stats are advisory: any
// invocation or parse failure yields (0,0) without an error.
func (d *WGQuick) TransferStats() (rx, tx uint64, err error) {
	d.mu.Lock()
	up := d.up
	d.mu.Unlock()
	if !up {
		return 0, 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, "wg", "show", TunnelName(), "transfer").Output()
	if err != nil {
		return 0, 0, nil
	}
	rx, tx = parseTransfer(string(output))
	return rx, tx, nil
}

// parseTransfer reads wg's tab-separated "peer rx tx" lines, summing across
// peers. Malformed lines are skipped.
func parseTransfer(output string) (rx, tx uint64) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Split(strings.TrimSpace(line), "\t")
		if len(fields) != 3 {
			continue
		}
		r, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		t, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			continue
		}
		rx += r
		tx += t
	}
	return rx, tx
}

// runElevated runs the tool through each elevation helper in turn, falling
// back to a direct invocation, and classifies the final failure.
func (d *WGQuick) runElevated(ctx context.Context, args ...string) error {
	attempts := make([][]string, 0, len(elevationHelpers)+1)
	for _, helper := range elevationHelpers {
		if _, err := exec.LookPath(helper[0]); err == nil {
			attempts = append(attempts, append(append([]string{}, helper...), args...))
		}
	}
	attempts = append(attempts, args)

	var lastOutput string
	var lastErr error
	for _, argv := range attempts {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		output, err := exec.CommandContext(runCtx, argv[0], argv[1:]...).CombinedOutput()
		cancel()

		if err == nil {
			return nil
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return ErrToolTimeout
		}
		lastOutput = string(output)
		lastErr = err
		d.log.Debug("tool invocation failed", "argv", strings.Join(argv, " "), "error", err)
	}

	return classifyToolFailure(args[0], lastOutput, lastErr)
}

// classifyToolFailure maps the tool's failure text onto the error taxonomy:
// elevation phrases become ErrPermissionDenied, everything else TunnelError.
func classifyToolFailure(op, output string, err error) error {
	lower := strings.ToLower(output)
	for _, phrase := range []string{
		"permission denied",
		"operation not permitted",
		"password is required",
		"not authorized",
		"access is denied",
	} {
		if strings.Contains(lower, phrase) {
			return ErrPermissionDenied
		}
	}
	if output != "" {
		err = fmt.Errorf("%w: %s", err, strings.TrimSpace(output))
	}
	return &TunnelError{Op: op, Err: err}
}
