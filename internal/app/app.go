package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"cronwait/internal/config"
	"cronwait/internal/httpapi"
	"cronwait/internal/runtime/supervisor"
	"cronwait/internal/schedule"
	logx "cronwait/pkg/logx"
)

type Options struct {
	// ConfigPath is a JSON/YAML file; empty means built-in defaults.
	ConfigPath string
	// LogLevel, when set, overrides logging.level (also across reloads).
	LogLevel string

	// Test hooks.
	Getenv   config.Getenv
	Clock    httpapi.Clock
	Location *time.Location
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	calc *schedule.Calculator
	http *httpapi.Server
}

func New(opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	if opts.Getenv != nil {
		cfgm.SetGetenv(opts.Getenv)
	}
	cfgm.SetValidator(checkSchedules)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl := strings.TrimSpace(opts.LogLevel); lvl != "" && !logx.ValidLevel(lvl) {
		return nil, fmt.Errorf("log level: unknown level %q", lvl)
	}

	logs, log := logx.New(logConfig(cfg, opts.LogLevel))
	log = log.With(logx.String("comp", "app"))

	exprs := cfg.Schedules
	if len(exprs) == 0 {
		exprs = schedule.DefaultExpressions
	}
	store, err := schedule.NewStore(exprs...)
	if err != nil {
		return nil, err
	}
	for _, bad := range schedule.Validate(store) {
		log.Warn("invalid schedule will be skipped",
			logx.Int("index", bad.Index),
			logx.String("expr", bad.Expr),
			logx.Err(bad.Err),
		)
	}
	calc := schedule.NewCalculator(store,
		schedule.WithLocation(opts.Location),
		schedule.WithLogger(log.With(logx.String("comp", "schedule"))),
	)

	scfg, err := mapServerConfig(cfg)
	if err != nil {
		return nil, err
	}
	httpLog := log.With(logx.String("comp", "http"))
	router := httpapi.NewRouter(httpapi.RouterOptions{
		Calc:       calc,
		Clock:      opts.Clock,
		Log:        httpLog,
		RatePerSec: cfg.HTTP.RatePerSec,
		Burst:      cfg.HTTP.Burst,
		Pprof: httpapi.PprofConfig{
			Enabled: cfg.Pprof.Enabled,
			Prefix:  cfg.Pprof.Prefix,
			Token:   cfg.Pprof.Token,
		},
	})

	log.Debug("app configured",
		logx.String("config", cfgm.Path()),
		logx.Int("schedules", store.Len()),
		logx.String("addr", scfg.Addr),
	)

	return &App{
		opts: opts,
		cfgm: cfgm,
		log:  log,
		logs: logs,
		calc: calc,
		http: httpapi.NewServer(scfg, router, httpLog),
	}, nil
}

// checkSchedules rejects a reloaded config whose schedules would leave the
// next restart with nothing to evaluate.
func checkSchedules(_ context.Context, cfg *config.Config) error {
	if len(cfg.Schedules) == 0 {
		return nil
	}
	store, err := schedule.NewStore(cfg.Schedules...)
	if err != nil {
		return fmt.Errorf("schedules: %w", err)
	}
	if bad := schedule.Validate(store); len(bad) == store.Len() {
		return fmt.Errorf("schedules: none of %d expressions parse: %w", len(bad), bad[0].Err)
	}
	return nil
}

func logConfig(cfg *config.Config, levelOverride string) logx.Config {
	lc := cfg.LogConfig()
	if lvl := strings.TrimSpace(levelOverride); lvl != "" {
		lc.Level = lvl
	}
	return lc
}

func mapServerConfig(cfg *config.Config) (httpapi.ServerConfig, error) {
	read, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 5*time.Second)
	if err != nil {
		return httpapi.ServerConfig{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 10*time.Second)
	if err != nil {
		return httpapi.ServerConfig{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", cfg.HTTP.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpapi.ServerConfig{}, err
	}
	return httpapi.ServerConfig{
		Addr:         cfg.HTTP.Addr(),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, nil
}

func (a *App) Calculator() *schedule.Calculator { return a.calc }

// Addr is the bound HTTP address ("" before Start).
func (a *App) Addr() string { return a.http.Addr() }

// Done is closed once the app is stopping, either from Stop or a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err is the error that stopped the app, nil after a clean shutdown.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.http.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("server running", logx.String("url", serverURL(a.http.Addr())))
	sdNotify(a.log, "READY=1")
	return nil
}

func serverURL(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	return "http://localhost:" + port
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig applies the hot-reloadable sections of newCfg. Everything
// else (listener, pprof, schedules) is fixed at startup.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload: nothing changed")
		return
	}

	var restart []string
	for _, s := range sections {
		if config.RequiresRestart(s) {
			restart = append(restart, s)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config changes require restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(logConfig(newCfg, a.opts.LogLevel))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, "STOPPING=1")

	a.sup.Cancel()

	a.step(ctx, "http", 3*time.Second, a.http.Stop)
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max (and never past ctx's deadline).
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("stop %s panicked: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
