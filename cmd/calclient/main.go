package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calclient/internal/client"
	"calclient/internal/config"
	"calclient/internal/connector"
	"calclient/internal/credstore"
	"calclient/internal/ics"
	appLog "calclient/internal/log"
	"calclient/internal/metrics"
	"calclient/internal/model"
	"calclient/internal/runner"
	"calclient/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	importFrom string
	importDays int
	dump       bool
	days       int
	level      int
}

func main() {
	flags := parseFlags()

	config.LoadDotEnv(flags.envFile)
	conf := config.LoadOrDefault(flags.configPath)
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("calclient starting", "version", version)
	appLog.Info("effective config",
		"base_url", conf.BaseURL,
		"timezone", conf.Timezone,
		"tick_interval", conf.TickInterval.String(),
		"refresh", conf.RefreshCron,
		"listen", conf.Listen,
		"import", flags.importFrom != "",
		"dump", flags.dump,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("calclient failed", err)
		os.Exit(1)
	}
	appLog.Info("calclient exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	m := metrics.New()
	c, err := client.New(client.Options{
		Connector: connector.Options{
			BaseURL:     conf.BaseURL,
			Timeout:     conf.RequestTimeout,
			MaxInFlight: conf.MaxInFlight,
			RateLimit:   conf.RateLimit,
			RateBurst:   conf.RateBurst,
			Metrics:     m,
		},
		Location: conf.Location(),
		Store:    credstore.New(conf.CredentialsPath),
	})
	if err != nil {
		return err
	}

	r := runner.New(c, conf.TickInterval)
	if err := r.ScheduleRefresh(conf.RefreshCron); err != nil {
		appLog.Error("invalid refresh schedule, periodic refresh disabled", err, "refresh", conf.RefreshCron)
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan error, 1)
	go func() { loopDone <- r.Run(loopCtx) }()
	defer func() {
		stopLoop()
		<-loopDone
		c.Close()
	}()

	if err := r.Do(ctx, login); err != nil {
		return err
	}

	switch {
	case flags.importFrom != "":
		return importFeed(ctx, r, conf, flags)
	case flags.dump:
		return dump(ctx, r, conf, flags.days)
	}

	if conf.Listen == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	return web.NewServer(conf, r, m).Serve(ctx)
}

// login resumes the stored session, or logs in with CALCLIENT_EMAIL and
// CALCLIENT_PASSWORD.
func login(c *client.Client) {
	if c.Resume() {
		return
	}
	email, password := os.Getenv("CALCLIENT_EMAIL"), os.Getenv("CALCLIENT_PASSWORD")
	if email == "" || password == "" {
		appLog.Warn("no stored session and no CALCLIENT_EMAIL/CALCLIENT_PASSWORD; staying logged out")
		return
	}
	if err := c.Handle(client.Login{Email: email, Password: password}); err != nil {
		appLog.Error("login failed", err)
	}
}

// settled waits until the client is logged in with nothing left to apply.
func settled(ctx context.Context, r *runner.Runner) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		var ready bool
		var lastErr error
		if err := r.Do(ctx, func(c *client.Client) {
			ready = c.LoggedIn() && c.Pending() == 0
			lastErr = c.LastError()
		}); err != nil {
			return err
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("client did not settle: %w", lastErr)
			}
			return errors.New("client did not settle")
		case <-ticker.C:
		}
	}
}

func importFeed(ctx context.Context, r *runner.Runner, conf *config.Config, flags flagConfig) error {
	if err := settled(ctx, r); err != nil {
		return err
	}
	body, err := ics.Read(ctx, nil, flags.importFrom)
	if err != nil {
		return err
	}

	loc := conf.Location()
	from := model.DateOf(time.Now(), loc)
	res, err := ics.Import(body, ics.ImportOptions{
		From:        from.Start(loc),
		To:          from.AddDays(flags.importDays).Start(loc),
		Location:    loc,
		AccessLevel: int32(flags.level),
		Visibility:  model.HideDescription,
	})
	if err != nil {
		return err
	}
	for _, uid := range res.Truncated {
		appLog.Warn("recurring event truncated", "uid", uid)
	}

	var handleErr error
	if err := r.Do(ctx, func(c *client.Client) {
		for _, e := range res.Events {
			if handleErr = c.Handle(client.InsertEvent{Event: e}); handleErr != nil {
				return
			}
		}
	}); err != nil {
		return err
	}
	if handleErr != nil {
		return handleErr
	}
	if err := settled(ctx, r); err != nil {
		return err
	}
	appLog.Info("import finished", "inserted", len(res.Events))
	return nil
}

func dump(ctx context.Context, r *runner.Runner, conf *config.Config, days int) error {
	if err := settled(ctx, r); err != nil {
		return err
	}
	if days <= 0 {
		days = conf.HorizonDays
	}
	var out string
	if err := r.Do(ctx, func(c *client.Client) {
		from := model.DateOf(time.Now(), c.Location())
		out = ics.Export(c.EventsInRange(from, days), ics.ExportOptions{Name: "calclient"})
	}); err != nil {
		return err
	}
	_, err := os.Stdout.WriteString(out)
	return err
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./calclient.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional env file loaded before the config")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.importFrom, "import", "", "ICS file or URL to insert as events, then exit")
	flag.IntVar(&cfg.importDays, "import-days", 90, "Days ahead to expand recurring events on import")
	flag.IntVar(&cfg.level, "import-level", 0, "Access level given to imported events")
	flag.BoolVar(&cfg.dump, "dump", false, "Print the upcoming days as ICS to stdout, then exit")
	flag.IntVar(&cfg.days, "days", 0, "Days to dump (default: horizon_days from config)")

	flag.Parse()

	return cfg
}
