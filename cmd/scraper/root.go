package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sietchlabs/scraper-go/pkg/autoadd"
	"github.com/sietchlabs/scraper-go/pkg/dashboard"
	"github.com/sietchlabs/scraper-go/pkg/export"
	"github.com/sietchlabs/scraper-go/pkg/filter"
	"github.com/sietchlabs/scraper-go/pkg/logging"
	"github.com/sietchlabs/scraper-go/pkg/request"
	"github.com/sietchlabs/scraper-go/pkg/scraper"
	"github.com/sietchlabs/scraper-go/pkg/telegram"
	"github.com/sietchlabs/scraper-go/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

type rootOptions struct {
	outputDir string
	format    string

	concurrent     int
	delay          float64
	timeout        int
	retries        int
	stealth        bool
	rotateIdentity bool
	simulate       bool

	autoAdd       bool
	targetChannel string
	botToken      string
	inviteDelay   float64
	batchSize     int

	minActivity     int
	maxActivity     int
	joinAfter       string
	joinBefore      string
	usernamePattern string
	excludeBanned   bool
	onlyActive      bool

	dashboard     bool
	dashboardAddr string

	logLevel string
	verbose  bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "scraper [groups...]",
		Short:         "Scrape user IDs from Telegram groups",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.outputDir, "output-dir", "output", "Directory to store output files")
	flags.StringVar(&opts.format, "format", export.FormatJSON, "Output format for scraped UIDs (json or csv)")

	flags.IntVar(&opts.concurrent, "concurrent", 10, "Number of groups scraped in parallel")
	flags.Float64Var(&opts.delay, "delay", 0.5, "Base delay between requests in seconds")
	flags.IntVar(&opts.timeout, "timeout", 30, "Request timeout in seconds")
	flags.IntVar(&opts.retries, "retries", 3, "Number of attempts for failed requests")
	flags.BoolVar(&opts.stealth, "stealth", false, "Enable stealth mode to avoid detection")
	flags.BoolVar(&opts.rotateIdentity, "rotate-identity", true, "Rotate the User-Agent on each request")
	flags.BoolVar(&opts.simulate, "simulate", false, "Use the built-in simulated member source instead of the network")

	flags.BoolVar(&opts.autoAdd, "auto-add", false, "Automatically add scraped users to the target channel")
	flags.StringVar(&opts.targetChannel, "target-channel", "", "Target channel for auto-adding users")
	flags.StringVar(&opts.botToken, "bot-token", "", "Bot token for auto-adding users")
	flags.Float64Var(&opts.inviteDelay, "invite-delay", 1.0, "Delay between invite attempts in seconds")
	flags.IntVar(&opts.batchSize, "batch-size", 50, "Number of users per auto-add progress batch")

	flags.IntVar(&opts.minActivity, "min-activity", 0, "Minimum user activity level")
	flags.IntVar(&opts.maxActivity, "max-activity", 0, "Maximum user activity level")
	flags.StringVar(&opts.joinAfter, "join-after", "", "Only include users who joined after this date (YYYY-MM-DD)")
	flags.StringVar(&opts.joinBefore, "join-before", "", "Only include users who joined before this date (YYYY-MM-DD)")
	flags.StringVar(&opts.usernamePattern, "username-pattern", "", "Regular expression pattern for usernames")
	flags.BoolVar(&opts.excludeBanned, "exclude-banned", false, "Exclude banned users")
	flags.BoolVar(&opts.onlyActive, "only-active", false, "Only include active users")

	flags.BoolVar(&opts.dashboard, "dashboard", false, "Enable the web dashboard")
	flags.StringVar(&opts.dashboardAddr, "dashboard-addr", dashboard.DefaultAddr, "Dashboard listen address")

	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warning, error)")
	flags.BoolVar(&opts.verbose, "verbose", false, "Enable verbose output")

	return cmd
}

func run(cmd *cobra.Command, groups []string, opts *rootOptions) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Error loading .env file")
	}

	log := logrus.New()
	log.SetFormatter(logging.NewConsoleFormatter())
	ring := logging.NewRingHook(logging.DefaultRingCapacity)
	log.AddHook(ring)

	if opts.verbose {
		log.SetLevel(logrus.DebugLevel)
	} else if level, err := logrus.ParseLevel(opts.logLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithFields(logrus.Fields{
			"attempted_level": opts.logLevel,
			"default_level":   "info",
		}).Warn("Invalid log level specified, defaulting to info")
	}

	spec, err := buildFilter(cmd, opts)
	if err != nil {
		return err
	}

	platformConfig, err := telegram.NewConfig()
	if err != nil {
		return fmt.Errorf("creating platform config: %w", err)
	}
	platformConfig.Logger = log
	platformConfig.RequestTimeout = time.Duration(opts.timeout) * time.Second
	if opts.botToken != "" {
		platformConfig.BotToken = opts.botToken
	}

	source, err := newPlatformClient(platformConfig, &request.Config{
		BaseDelay:      secondsToDuration(opts.delay),
		MaxRetries:     opts.retries,
		Stealth:        opts.stealth,
		RotateIdentity: opts.rotateIdentity,
		Logger:         log,
	}, opts)
	if err != nil {
		return err
	}

	var adder *autoadd.Engine
	if opts.autoAdd {
		if opts.targetChannel == "" || platformConfig.BotToken == "" {
			return fmt.Errorf("auto-add requires --target-channel and a bot token")
		}

		// The invite path owns its own transport, never shared with
		// the scrape path.
		inviter, err := newPlatformClient(platformConfig, &request.Config{
			BaseDelay:  secondsToDuration(opts.inviteDelay),
			MaxRetries: opts.retries,
			Logger:     log,
		}, opts)
		if err != nil {
			return err
		}

		adder, err = autoadd.NewEngine(&autoadd.Config{
			TargetChannel: opts.targetChannel,
			InviteDelay:   secondsToDuration(opts.inviteDelay),
			BatchSize:     opts.batchSize,
			Logger:        log,
		}, inviter)
		if err != nil {
			return err
		}
	}

	scraperConfig := &scraper.Config{
		Groups:            groups,
		Concurrency:       opts.concurrent,
		MembersPerRequest: platformConfig.MembersPerRequest,
		Source:            source,
		Filter:            spec,
		Logger:            log,
	}
	if adder != nil {
		scraperConfig.Distributor = adder
	}

	scr, err := scraper.New(scraperConfig)
	if err != nil {
		return err
	}

	var dash *dashboard.Server
	if opts.dashboard {
		dash = dashboard.NewServer(opts.dashboardAddr, scr.Stats, ring, log)
		if err := dash.Start(); err != nil {
			return err
		}
		defer dash.Stop()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			log.WithField("signal", sig.String()).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.WithField("groups", len(groups)).Info("Starting Telegram UID scraper")

	records, errs := scr.ScrapeAll(ctx)
	var collected []*types.Record
	for rec := range records {
		collected = append(collected, rec)
		if dash != nil {
			dash.AddRecord(rec)
		}
		log.WithFields(logrus.Fields{
			"uid":   rec.UID,
			"group": rec.Group,
		}).Debug("Scraped record")
	}
	if err := <-errs; err != nil {
		return err
	}
	scr.Stop()

	snap := scr.Stats()
	log.WithFields(logrus.Fields{
		"total_processed": snap.TotalProcessed,
		"successful":      snap.SuccessfulScrapes,
		"failed":          snap.FailedScrapes,
		"bandwidth_used":  snap.BandwidthUsed,
	}).Info("Scraping completed")

	// Partial results are still exported after a canceled or degraded run.
	if len(collected) > 0 {
		if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		path := filepath.Join(opts.outputDir,
			fmt.Sprintf("uids_%s.%s", time.Now().Format("20060102_150405"), opts.format))
		if err := export.Write(log, collected, opts.format, path); err != nil {
			return err
		}
	}

	return nil
}

// buildFilter assembles the filter spec from whichever filter flags were
// actually provided; absent flags impose no constraint.
func buildFilter(cmd *cobra.Command, opts *rootOptions) (*filter.Spec, error) {
	b := filter.NewBuilder()

	var minP, maxP *int
	if cmd.Flags().Changed("min-activity") {
		minP = &opts.minActivity
	}
	if cmd.Flags().Changed("max-activity") {
		maxP = &opts.maxActivity
	}
	b.ActivityRange(minP, maxP)

	var afterP, beforeP *time.Time
	if opts.joinAfter != "" {
		t, err := time.Parse(dateLayout, opts.joinAfter)
		if err != nil {
			return nil, fmt.Errorf("parsing --join-after: %w", err)
		}
		afterP = &t
	}
	if opts.joinBefore != "" {
		t, err := time.Parse(dateLayout, opts.joinBefore)
		if err != nil {
			return nil, fmt.Errorf("parsing --join-before: %w", err)
		}
		beforeP = &t
	}
	b.JoinDateRange(afterP, beforeP)

	b.UsernamePattern(opts.usernamePattern)
	b.StatusFilters(opts.excludeBanned, opts.onlyActive)

	return b.Build()
}

// newPlatformClient builds a platform client over its own request engine
// and transport.
func newPlatformClient(config *telegram.Config, engineConfig *request.Config, opts *rootOptions) (*telegram.Client, error) {
	var transport request.Transport
	if opts.simulate {
		transport = telegram.NewSimulator()
	} else {
		transport = telegram.NewHTTPTransport(config.RequestTimeout, config.Logger)
	}

	engine, err := request.NewEngine(engineConfig, transport)
	if err != nil {
		return nil, err
	}
	return telegram.NewClient(config, engine)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
