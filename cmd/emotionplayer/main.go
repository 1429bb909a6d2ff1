package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keagan/emotionplayer/internal/config"
	"github.com/keagan/emotionplayer/internal/darkframe"
	"github.com/keagan/emotionplayer/internal/logging"
	"github.com/keagan/emotionplayer/internal/pipeline"
	"github.com/keagan/emotionplayer/internal/rating"
	"github.com/keagan/emotionplayer/internal/results"
	"github.com/keagan/emotionplayer/internal/server"
	"github.com/keagan/emotionplayer/pkg/util"
)

var (
	cfgFile   string
	verbose   bool
	serveAddr string
	closeLog  = func() error { return nil }
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "emotionplayer",
	Short: "emotionplayer - sentiment and content rating for video files",
	Long:  "Samples video frames, scores them with two image classifiers and rates each video for content.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Initialize logging
		closeLog, err = logging.Init(logging.Options{
			Level:   cfg.Log.Level,
			Format:  cfg.Log.Format,
			File:    cfg.Log.File,
			Verbose: verbose,
		})
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(sentimentCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [videos...]",
	Short: "Score and rate a playlist of videos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pipe, cleanup, err := buildPipeline(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		display := newProgressDisplay(os.Stderr)
		session := pipeline.NewSession(log.Logger, pipe)
		runErr := session.Run(cmd.Context(), args, display.callbacks())
		display.finish()

		printSummary(cmd, session.Results())
		return runErr
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify [name]",
	Short: "Rate a video from its stored prediction files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		store := newStore(cfg)

		classifier, closeScorer, err := buildClassifier(cfg, store)
		if err != nil {
			return err
		}
		defer closeScorer()

		out := classifier.Classify(cmd.Context(), args[0])
		switch out.Status {
		case rating.Rated:
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (score %.4f)\n", args[0], out.Rating, out.Score)
			return nil
		case rating.Missing:
			return fmt.Errorf("%s: prediction files not found in %s", args[0], store.Dir)
		default:
			return fmt.Errorf("%s: classification failed: %w", args[0], out.Err)
		}
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [file.epp|file.efp]",
	Short: "Print a summary of a prediction file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		return inspectFile(cmd, cfg, args[0])
	},
}

var sentimentCmd = &cobra.Command{
	Use:   "sentiment [name] [timestamp]",
	Short: "Show the emotion overlay state at a playback position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		at, err := util.ParseTimestamp(args[1])
		if err != nil {
			return err
		}

		preds, interval, err := newStore(cfg).LoadPositiveness(args[0])
		if err != nil {
			return err
		}

		emotion := results.SentimentAt(preds, interval, int(at.Seconds()))
		fmt.Fprintf(cmd.OutOrStdout(), "%s @ %s: %s\n", args[0], util.FormatDuration(at), emotion)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve [videos...]",
	Short: "Process videos and serve results over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		ctx := cmd.Context()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		if len(args) == 0 {
			// serve whatever earlier runs left in the output directory
			session := pipeline.NewSession(log.Logger, nil)
			if err := loadStored(ctx, cfg, session); err != nil {
				return err
			}
			return server.New(log.Logger, session, cfg.Server.AllowedOrigins).ListenAndServe(ctx, addr)
		}

		pipe, cleanup, err := buildPipeline(cfg)
		if err != nil {
			return err
		}

		session := pipeline.NewSession(log.Logger, pipe)
		srv := server.New(log.Logger, session, cfg.Server.AllowedOrigins)
		return serveWhileProcessing(ctx, session, args, func(ctx context.Context) error {
			return srv.ListenAndServe(ctx, addr)
		}, cleanup)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func printSummary(cmd *cobra.Command, list []*pipeline.Result) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO\tRATING\tFRAMES\tPOSITIVE\tNEGATIVE\tDARK\tERRORS")
	for _, res := range list {
		label := res.Outcome.Rating
		if !res.Rated() {
			label = res.Outcome.Status.String()
		}
		frames, pos, neg := 0, 0, 0
		if !res.Positiveness.Empty() {
			frames = res.Positiveness.Count
			pos, neg = results.CountSentiment(res.Positiveness)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n", res.Name, label, frames, pos, neg, res.DarkFrames, len(res.Errors))
	}
	w.Flush()
}

func inspectFile(cmd *cobra.Command, cfg *config.Config, path string) error {
	var classes int
	switch ext := filepath.Ext(path); ext {
	case results.PositivenessExt:
		classes = cfg.Positiveness.Classes
	case results.FilterExt:
		classes = cfg.Filter.Classes
	default:
		return fmt.Errorf("unknown prediction file extension %q", ext)
	}

	preds, interval, err := results.Read(path, classes)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "file:     %s\nframes:   %d\ninterval: %ds\nclasses:  %d\n", path, preds.Count, interval, preds.Classes)
	if preds.Empty() {
		return nil
	}

	dark := 0
	sums := make([]float64, preds.Classes)
	for i := 0; i < preds.Count; i++ {
		if darkframe.IsMasked(preds, i) {
			dark++
			continue
		}
		for c, v := range preds.Row(i) {
			sums[c] += float64(v)
		}
	}
	fmt.Fprintf(out, "dark:     %d\n", dark)
	if lit := preds.Count - dark; lit > 0 {
		for c, s := range sums {
			fmt.Fprintf(out, "class %d mean: %.4f\n", c, s/float64(lit))
		}
	}
	if filepath.Ext(path) == results.PositivenessExt {
		pos, neg := results.CountSentiment(preds)
		fmt.Fprintf(out, "positive: %d\nnegative: %d\n", pos, neg)
	}
	return nil
}
