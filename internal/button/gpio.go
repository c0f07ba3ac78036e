package button

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/metrosign/metrosign/internal/logging"
)

// DefaultPollInterval is how often Watch samples the input.
const DefaultPollInterval = 5 * time.Millisecond

// Input reads the raw line level. true is high.
type Input interface {
	Read() (bool, error)
}

// InputFunc adapts a function to Input.
type InputFunc func() (bool, error)

func (f InputFunc) Read() (bool, error) {
	return f()
}

// GPIOFile reads a sysfs style GPIO value file, for example
// /sys/class/gpio/gpio17/value, which holds "0" or "1".
type GPIOFile struct {
	Path string
}

func (g GPIOFile) Read() (bool, error) {
	raw, err := os.ReadFile(g.Path)
	if err != nil {
		return false, fmt.Errorf("failed to read gpio value: %w", err)
	}
	switch string(bytes.TrimSpace(raw)) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected gpio value %q in %s", raw, g.Path)
	}
}

// Watch samples in every poll interval and sends on presses for each falling
// edge. A press is dropped when the previous one has not been consumed yet.
// Read errors are logged and the sample skipped. Watch returns when ctx is
// done.
func Watch(ctx context.Context, in Input, d *Debouncer, poll time.Duration, presses chan<- struct{}) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	logger := logging.FromContext(ctx).With(slog.String("component", "button"))

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		level, err := in.Read()
		if err != nil {
			// Only log when the failure changes, a missing file would
			// otherwise log every poll.
			if err.Error() != lastErr {
				logging.LogError(logger, "failed to read button", err)
				lastErr = err.Error()
			}
			continue
		}
		lastErr = ""

		if d.Update(level) != Fell {
			continue
		}
		select {
		case presses <- struct{}{}:
			logger.Debug("button pressed")
		default:
			logger.Debug("button press dropped, switch already pending")
		}
	}
}
