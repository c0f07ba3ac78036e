// Command metrosign drives a transit arrival sign from live prediction
// APIs and serves its status over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metrosign/metrosign/internal/app"
	"github.com/metrosign/metrosign/internal/appconf"
	"github.com/metrosign/metrosign/internal/button"
	"github.com/metrosign/metrosign/internal/logging"
	"github.com/metrosign/metrosign/internal/restapi"
)

const shutdownTimeout = 10 * time.Second

// cliFlags are the command line settings that override the config file.
type cliFlags struct {
	configPath string
	port       int
	env        string
	apiKeys    string
	verbose    bool
	once       bool
	// set records which flags were given explicitly.
	set map[string]bool
}

func parseFlags(fs *flag.FlagSet, args []string) (cliFlags, error) {
	var f cliFlags
	fs.StringVar(&f.configPath, "config", "", "path to a JSON or YAML config file (required)")
	fs.IntVar(&f.port, "port", appconf.DefaultPort, "status server port, 0 disables the server")
	fs.StringVar(&f.env, "env", "development", "environment (development|test|production)")
	fs.StringVar(&f.apiKeys, "api-keys", "", "comma separated keys allowed to switch modes")
	fs.BoolVar(&f.verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&f.once, "once", false, "refresh the board once, print it and exit")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.configPath == "" {
		return f, errors.New("-config is required")
	}
	f.set = map[string]bool{}
	fs.Visit(func(fl *flag.Flag) {
		f.set[fl.Name] = true
	})
	return f, nil
}

// applyOverrides copies explicitly set flags onto cfg.
func applyOverrides(cfg *appconf.Config, f cliFlags) error {
	if f.set["port"] {
		cfg.Port = f.port
	}
	if f.set["env"] {
		env, err := appconf.ParseEnvironment(f.env)
		if err != nil {
			return err
		}
		cfg.Env = env
	}
	if f.set["api-keys"] {
		cfg.ApiKeys = ParseAPIKeys(f.apiKeys)
	}
	if f.set["verbose"] {
		cfg.Verbose = f.verbose
	}
	return nil
}

func main() {
	f, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	fileCfg, err := appconf.LoadFromFile(f.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := fileCfg.ToAppConfig()
	signCfg := fileCfg.ToSignConfig()
	if err := applyOverrides(&cfg, f); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	coreApp, err := BuildApplication(cfg, signCfg, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeApplication(coreApp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, coreApp.Logger)

	if f.once {
		err = runOnce(ctx, coreApp)
	} else {
		srv, api := statusServer(coreApp, cfg)
		err = Run(ctx, coreApp, srv, api)
	}
	if err != nil {
		logging.LogError(coreApp.Logger, "metrosign exited with error", err)
		closeApplication(coreApp)
		os.Exit(1)
	}
}

// statusServer builds the status server, or returns nils when cfg.Port is
// not positive.
func statusServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	if cfg.Port <= 0 {
		return nil, nil
	}
	return CreateServer(coreApp, cfg)
}

// runOnce performs a single refresh. The terminal display prints the frame.
func runOnce(ctx context.Context, coreApp *app.Application) error {
	if _, err := coreApp.Sign.Refresh(ctx); err != nil {
		return err
	}
	if !coreApp.Sign.Status().Observed {
		return errors.New("prediction API unavailable")
	}
	return nil
}

// Run serves the status API and drives the sign until ctx is done or the
// server fails, then shuts both down. A nil srv runs the sign alone.
func Run(ctx context.Context, coreApp *app.Application, srv *http.Server, api *restapi.RestAPI) error {
	logger := coreApp.Logger
	if api != nil {
		defer api.Shutdown()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Stays open and empty without a server, so only ctx ends the select.
	serverErr := make(chan error, 1)
	if srv == nil {
		logging.LogOperation(logger, "status_server_disabled")
	} else {
		go serve(logger, coreApp, srv, serverErr)
	}

	presses := startButton(ctx, coreApp)

	signDone := make(chan struct{})
	go func() {
		defer close(signDone)
		_ = coreApp.Sign.Run(ctx, presses)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logging.LogOperation(logger, "shutdown_requested")
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("status server failed: %w", err)
		}
	}
	cancel()
	<-signDone

	if srv == nil {
		return runErr
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown failed: %w", err)
	}
	logging.LogOperation(logger, "server_stopped")
	return runErr
}

func serve(logger *slog.Logger, coreApp *app.Application, srv *http.Server, serverErr chan<- error) {
	logging.LogOperation(logger, "server_starting",
		slog.String("addr", srv.Addr),
		slog.String("env", coreApp.Config.Env.String()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		serverErr <- err
	}
	close(serverErr)
}

// startButton polls the mode button when one is configured. The returned
// channel is nil otherwise.
func startButton(ctx context.Context, coreApp *app.Application) chan struct{} {
	sc := coreApp.SignConfig
	if sc.ButtonPath == "" {
		return nil
	}
	presses := make(chan struct{}, 1)
	// The input is pulled up, so idle reads high and a press falls.
	debouncer := button.NewDebouncer(coreApp.Clock, sc.ButtonDebounce, true)
	go button.Watch(ctx, button.GPIOFile{Path: sc.ButtonPath}, debouncer, sc.ButtonPoll, presses)
	logging.LogOperation(coreApp.Logger, "button_watch_started", slog.String("path", sc.ButtonPath))
	return presses
}
