package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"httpbench/internal/banner"
	"httpbench/internal/cli"
	"httpbench/internal/dummy"
	"httpbench/internal/runner"
	"httpbench/internal/storage"
)

var (
	cfgFile string

	// CLI Flags
	number          int
	duration        int
	concurrent      int
	method          string
	body            string
	headers         []string
	wantCode        int
	paramsInResults bool
	timeout         int
	outPrefix       string
	liveUI          bool
	debug           bool
)

var rootCmd = &cobra.Command{
	Use:   "pb [flags] URL...",
	Short: "pb - HTTP benchmarking and load testing tool",
	Long: `
pb issues a target number of HTTP requests against one or more
endpoints while holding a fixed number of requests in flight, then
reports throughput and per-endpoint latency percentiles.

Run a fixed request count with -n, or a fixed duration with -T.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()

		cfg, err := buildConfig(cmd, args)
		if err != nil {
			return err
		}
		return cli.Start(cfg, liveUI)
	},
	SilenceUsage: true,
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(dummyCmd)
	rootCmd.AddCommand(historyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.httpbench.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Copious amounts of output")

	rootCmd.Flags().IntVarP(&number, "number", "n", 0, "The total number of requests to make")
	rootCmd.Flags().IntVarP(&duration, "time", "T", 0, "The number of seconds to run at the specified concurrency")
	rootCmd.Flags().IntVarP(&concurrent, "concurrent", "c", 0, "The concurrent number of requests to hold in flight (required)")
	rootCmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP Method")
	rootCmd.Flags().StringVarP(&body, "body", "b", "", "Request Body (supports template expressions)")
	rootCmd.Flags().StringSliceVarP(&headers, "header", "H", []string{}, "HTTP Header (e.g. \"Key: Value\")")
	rootCmd.Flags().IntVar(&wantCode, "code", 200, "HTTP status code a request must return to count as successful")
	rootCmd.Flags().BoolVar(&paramsInResults, "params-in-results", false, "Keep query strings in result grouping, so /x?a=1 and /x?a=2 report separately")
	rootCmd.Flags().IntVar(&timeout, "timeout", 30, "Request timeout in seconds")
	rootCmd.Flags().StringVarP(&outPrefix, "out", "o", "", "Output filename prefix for the JSON report")
	rootCmd.Flags().BoolVar(&liveUI, "live", false, "Show the live TUI dashboard")

	rootCmd.MarkFlagRequired("concurrent")
	rootCmd.MarkFlagsMutuallyExclusive("number", "time")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".httpbench")
		}
	}
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func setupLogging() {
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp:       true,
			DisableLevelTruncation: true,
		})
	}
}

func buildConfig(cmd *cobra.Command, args []string) (runner.Config, error) {
	cfg := runner.Config{
		Concurrency:       concurrent,
		IncludeQueryInKey: paramsInResults,
		TimeoutSec:        timeout,
		OutPrefix:         outPrefix,
	}

	switch {
	case cmd.Flags().Changed("number"):
		cfg.QuotaKind = runner.QuotaCount
		cfg.QuotaValue = number
	case cmd.Flags().Changed("time"):
		cfg.QuotaKind = runner.QuotaDuration
		cfg.QuotaValue = duration
	}

	hdrs := make(map[string]string)
	for _, h := range headers {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) == 2 {
			hdrs[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	for _, url := range args {
		cfg.Targets = append(cfg.Targets, runner.Target{
			URL:        url,
			Method:     method,
			Body:       body,
			Headers:    hdrs,
			WantStatus: wantCode,
		})
	}

	return cfg, nil
}

// --- Dummy Subcommand ---

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a local target server with known latency shapes",
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		dummy.Start(dummy.ServerConfig{Port: port})
		select {}
	},
}

// --- History Subcommand ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past benchmark runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewStore()
		if err != nil {
			return err
		}
		defer store.Close()

		recs := store.List()
		if len(recs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		for _, rec := range recs {
			urls := make([]string, 0, len(rec.Config.Targets))
			for _, t := range rec.Config.Targets {
				urls = append(urls, t.URL)
			}
			fmt.Printf("%s  %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"), strings.Join(urls, ", "))
			fmt.Printf("    c=%d %s=%d done=%d ok=%d fail=%d %.2f req/s\n",
				rec.Config.Concurrency,
				rec.Config.QuotaKind, rec.Config.QuotaValue,
				rec.Report.RequestsDone, rec.Report.Succeeded, rec.Report.Failed,
				rec.Report.RequestsPerSecond,
			)
		}
		return nil
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8080, "Port to run dummy server on")
}
