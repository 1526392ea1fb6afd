package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Options configures progress bar behavior
type Options struct {
	Quiet   bool
	Verbose bool
	// Out receives bars and messages; defaults to stdout for messages and stderr for bars.
	Out io.Writer
}

// Manager handles progress bars and cancellation
type Manager struct {
	options    Options
	totalBar   *progressbar.ProgressBar
	barMux     sync.Mutex
	tty        bool
	cancelFunc context.CancelFunc
	cancelled  bool
	cancelMux  sync.Mutex
	signalChan chan os.Signal
}

// NewManager creates a new progress manager
func NewManager(options Options) *Manager {
	pm := &Manager{
		options:    options,
		signalChan: make(chan os.Signal, 1),
	}
	if f, ok := pm.barWriter().(*os.File); ok {
		pm.tty = term.IsTerminal(int(f.Fd()))
	}
	return pm
}

// SetupCancellation sets up signal handling for cancellation
func (pm *Manager) SetupCancellation(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	pm.cancelFunc = cancel

	signal.Notify(pm.signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-pm.signalChan:
			pm.cancelMux.Lock()
			pm.cancelled = true
			pm.cancelMux.Unlock()
			// #nosec G104 - cancellation message is not critical for functionality
			fmt.Println("\nOperation cancelled by user")
			cancel()
		case <-ctx.Done():
			// Context already cancelled
		}
	}()

	return ctx
}

// IsCancelled checks if the operation was cancelled
func (pm *Manager) IsCancelled() bool {
	pm.cancelMux.Lock()
	defer pm.cancelMux.Unlock()
	return pm.cancelled
}

// Cleanup removes signal handlers
func (pm *Manager) Cleanup() {
	signal.Stop(pm.signalChan)
	if pm.cancelFunc != nil {
		pm.cancelFunc()
	}
}

// InitTotalProgress initializes the total progress bar
func (pm *Manager) InitTotalProgress(totalBytes int64, description string) {
	if pm.options.Quiet {
		return
	}

	pm.barMux.Lock()
	defer pm.barMux.Unlock()
	pm.totalBar = progressbar.NewOptions64(totalBytes,
		progressbar.OptionSetDescription(fmt.Sprintf("%s [total]", description)),
		progressbar.OptionSetWriter(pm.barWriter()),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(65),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			// #nosec G104 - progress bar completion message is not critical
			fmt.Fprint(pm.barWriter(), "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
	)
}

// SetTotalProgress moves the total progress bar to an absolute byte count
func (pm *Manager) SetTotalProgress(bytes int64) {
	if pm.options.Quiet {
		return
	}
	pm.barMux.Lock()
	defer pm.barMux.Unlock()
	if pm.totalBar == nil {
		return
	}
	// #nosec G104 - progress bar errors are not critical for functionality
	pm.totalBar.Set64(bytes)
}

// UpdateTotalProgress updates the total progress bar
func (pm *Manager) UpdateTotalProgress(bytes int64) {
	if pm.options.Quiet {
		return
	}
	pm.barMux.Lock()
	defer pm.barMux.Unlock()
	if pm.totalBar == nil {
		return
	}
	// #nosec G104 - progress bar errors are not critical for functionality
	pm.totalBar.Add64(bytes)
}

// FinishTotalProgress marks the total progress as complete
func (pm *Manager) FinishTotalProgress() {
	if pm.options.Quiet {
		return
	}
	pm.barMux.Lock()
	defer pm.barMux.Unlock()
	if pm.totalBar == nil {
		return
	}
	// #nosec G104 - progress bar errors are not critical for functionality
	pm.totalBar.Finish()
	pm.totalBar = nil
}

// PrintVerbose prints verbose information if verbose mode is enabled
func (pm *Manager) PrintVerbose(format string, args ...interface{}) {
	if !pm.options.Verbose {
		return
	}
	// Ensure output ends with newline if not already present
	if len(format) == 0 || format[len(format)-1] != '\n' {
		format += "\n"
	}
	pm.print(pm.out(), format, args...)
}

// PrintInfo prints informational messages (unless quiet mode)
func (pm *Manager) PrintInfo(format string, args ...interface{}) {
	if !pm.options.Quiet {
		pm.print(pm.out(), format, args...)
	}
}

// PrintWarning prints a warning to stderr, even in quiet mode
func (pm *Manager) PrintWarning(format string, args ...interface{}) {
	w := io.Writer(os.Stderr)
	if pm.options.Out != nil {
		w = pm.options.Out
	}
	pm.print(w, "Warning: "+format, args...)
}

// print clears the bar and writes one message while holding barMux, so
// concurrent callers and bar redraws never interleave on a shared writer.
func (pm *Manager) print(w io.Writer, format string, args ...interface{}) {
	pm.barMux.Lock()
	defer pm.barMux.Unlock()
	if pm.totalBar != nil {
		// #nosec G104 - progress bar clear is not critical for functionality
		pm.totalBar.Clear()
	}
	// #nosec G104 - message output errors are not critical for functionality
	fmt.Fprintf(w, format, args...)
}

// IsTerminal reports whether the bar is drawn on a terminal
func (pm *Manager) IsTerminal() bool {
	return pm.tty
}

// IsVerbose reports whether verbose output is enabled
func (pm *Manager) IsVerbose() bool {
	return pm.options.Verbose
}

func (pm *Manager) out() io.Writer {
	if pm.options.Out != nil {
		return pm.options.Out
	}
	return os.Stdout
}

func (pm *Manager) barWriter() io.Writer {
	if pm.options.Out != nil {
		return pm.options.Out
	}
	return os.Stderr
}
