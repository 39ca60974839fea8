package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iwvelando/tamerun-invest/internal/client"
	"github.com/iwvelando/tamerun-invest/internal/config"
	"github.com/iwvelando/tamerun-invest/internal/forecast"
	"github.com/iwvelando/tamerun-invest/internal/logging"
	"github.com/iwvelando/tamerun-invest/internal/resolver"
	"github.com/iwvelando/tamerun-invest/internal/tracing"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/datetime"
	"github.com/iwvelando/tamerun-invest/pkg/installment"
	"github.com/iwvelando/tamerun-invest/pkg/output"
	"github.com/iwvelando/tamerun-invest/pkg/validation"
	"go.uber.org/zap"
)

const usage = `usage: tamerun-invest [-config path] [-log-level level] [-output-format pretty|csv] <command> [flags]

commands:
  invest       forecast the growth of starting capital
  installment  print installment payment schedules
`

// app carries what every command needs.
type app struct {
	logger  *zap.Logger
	conf    *config.Configuration
	client  *client.Client
	format  string
	encoded io.WriteCloser
}

func main() {
	// Process command line flags first to get config location
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Load the config file to get logging configuration
	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	// Initialize logging based on config and CLI override
	logger, err := logging.New(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Determine output format (CLI override takes precedence over config)
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}
	conf.Output.Format = outputFormat

	if err := conf.Validate(); err != nil {
		logger.Fatal("invalid configuration",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	// Validate configuration and display any warnings
	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, logger, conf.Tracing)
	if err != nil {
		logger.Fatal("failed to initialize tracing",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	defer func() {
		_ = shutdownTracing(ctx)
	}()

	a := &app{logger: logger, conf: conf, format: outputFormat}
	if conf.UsesBackend() {
		a.client, err = client.New(logger, client.Options{
			BaseURL: conf.Backend.BaseURL,
			Timeout: conf.Backend.Timeout,
		})
		if err != nil {
			logger.Fatal("failed to create backend client",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	}

	encoding := constants.OutputEncodingUTF8
	if outputFormat == constants.OutputFormatCSV {
		encoding = conf.Output.Encoding
	}
	a.encoded, err = output.NewEncodedWriter(os.Stdout, encoding)
	if err != nil {
		logger.Fatal("failed to prepare output",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	command, args := flag.Arg(0), flag.Args()[1:]
	switch command {
	case "invest":
		err = a.runInvest(ctx, args)
	case "installment":
		err = a.runInstallment(ctx, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if closeErr := a.encoded.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		logger.Fatal("command failed",
			zap.String("op", "main"),
			zap.String("command", command),
			zap.Error(err),
		)
	}
}

func (a *app) runInvest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("invest", flag.ExitOnError)
	capital := fs.Float64("capital", 0, "starting capital in rubles")
	term := fs.Int("term", 0, "investment term in years")
	rate := fs.Float64("rate", a.conf.Investment.AnnualRate, "annual interest rate in percent")
	if err := fs.Parse(args); err != nil {
		return err
	}

	forecaster, err := forecast.NewForecaster(a.logger, a.conf.Investment.Mode, a.client)
	if err != nil {
		return err
	}
	result, err := forecaster.Forecast(ctx, *capital, *rate, *term)
	if err != nil {
		return fmt.Errorf("failed to compute forecast: %w", err)
	}

	switch a.format {
	case constants.OutputFormatCSV:
		return output.CsvInvestment(a.encoded, result)
	default:
		return output.PrettyInvestment(a.encoded, result)
	}
}

func (a *app) runInstallment(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("installment", flag.ExitOnError)
	price := fs.Float64("price", 0, "property price in rubles")
	date := fs.String("date", "", "down payment date, YYYY-MM-DD or DD.MM.YYYY (default today)")
	period := fs.Int("plan", installment.DefaultPeriod, "installment period in months: "+periodList())
	all := fs.Bool("all", false, "print the schedule of every plan")
	export := fs.Bool("export", false, "write the schedule document of the selected plan")
	apartment := fs.Int("apartment", 0, "apartment number printed on the document")
	outDir := fs.String("out", ".", "directory the document is written to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var start *time.Time
	if *date != "" {
		parsed, err := datetime.ParseDate(*date)
		if err != nil {
			return err
		}
		start = &parsed
	}

	scheduler, err := forecast.NewScheduler(a.conf.Installment.Mode, a.client)
	if err != nil {
		return err
	}
	exporter, err := forecast.NewExporter(a.conf.Installment.Mode, a.client, "")
	if err != nil {
		return err
	}
	res, err := resolver.New(a.logger, resolver.Inputs{PropertyPrice: *price, DownPaymentDate: start}, resolver.Options{
		Fetcher:  scheduler,
		Exporter: exporter,
		Timeout:  a.conf.Backend.Timeout,
	})
	if err != nil {
		return err
	}

	periods := []int{*period}
	if *all {
		periods = installment.Periods()
	}
	for i, p := range periods {
		view, err := res.Select(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to compute %d month schedule: %w", p, err)
		}
		if i > 0 && a.format == constants.OutputFormatPretty {
			fmt.Fprintln(a.encoded)
		}
		if err := a.printSchedule(view); err != nil {
			return err
		}
	}

	if !*export {
		return nil
	}
	if *all {
		// Export the plan that was asked for, not the last one printed.
		if _, err := res.Select(ctx, *period); err != nil {
			return err
		}
	}
	doc, err := res.Export(ctx, *apartment)
	if err != nil {
		return fmt.Errorf("failed to export schedule: %w", err)
	}
	path := filepath.Join(*outDir, doc.FileName)
	if err := os.WriteFile(path, doc.Data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	a.logger.Info("wrote schedule document",
		zap.String("op", "main.runInstallment"),
		zap.String("path", path),
	)
	return nil
}

func (a *app) printSchedule(view resolver.View) error {
	switch a.format {
	case constants.OutputFormatCSV:
		return output.CsvSchedule(a.encoded, view.Schedule)
	default:
		return output.PrettySchedule(a.encoded, view.Plan, view.Schedule)
	}
}

func periodList() string {
	periods := installment.Periods()
	parts := make([]string, len(periods))
	for i, p := range periods {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ", ")
}
