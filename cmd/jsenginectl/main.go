// Command jsenginectl drives a jsengine Context from the command
// line: handy for exercising the Code Evaluator and Heap Reporter
// without writing a client binding.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/r3e-labs/jsengine"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jsenginectl",
		Short: "Drive a jsengine Context from the command line",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a runtime config TOML file (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, disabled)")

	rootCmd.AddCommand(evalCmd(), heapStatsCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()
}

func loadConfig() (jsengine.RuntimeConfig, error) {
	if configFile == "" {
		return jsengine.DefaultRuntimeConfig(), nil
	}
	cfg, warnings, err := jsengine.LoadRuntimeConfig(configFile)
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return cfg, err
}

// syncCaller adapts jsengine's async callback-delivery contract into
// a blocking call for this CLI's single-shot use: every op here
// issues exactly one callback_id and waits on it.
type syncCaller struct {
	results chan *jsengine.Value
}

func newSyncCaller() *syncCaller {
	return &syncCaller{results: make(chan *jsengine.Value, 1)}
}

func (s *syncCaller) deliver(_ jsengine.CallbackID, v *jsengine.Value) {
	s.results <- v
}

func (s *syncCaller) wait() *jsengine.Value {
	return <-s.results
}

func evalCmd() *cobra.Command {
	var hardLimitMB int

	cmd := &cobra.Command{
		Use:   "eval <script>",
		Short: "Evaluate a JavaScript expression and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if hardLimitMB > 0 {
				cfg.HardHeapLimitBytes = uint64(hardLimitMB) * 1024 * 1024
			}

			log := newLogger()
			caller := newSyncCaller()
			id := jsengine.MakeContext(cfg, log, caller.deliver)
			defer jsengine.FreeContext(id)

			ctx, ok := jsengine.Lookup(id)
			if !ok {
				return fmt.Errorf("jsenginectl: context %s vanished immediately after creation", id)
			}

			code := ctx.NewStringValue(args[0])
			ctx.Eval(code, 1)
			result := caller.wait()

			if result.IsException() {
				return fmt.Errorf("%s", result.Describe())
			}
			fmt.Println(result.Describe())
			return nil
		},
	}

	cmd.Flags().IntVar(&hardLimitMB, "hard-limit-mb", 0, "Hard heap limit in MiB (0 = use config default)")
	return cmd
}

func heapStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heap-stats",
		Short: "Print heap_stats() as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger()
			caller := newSyncCaller()
			id := jsengine.MakeContext(cfg, log, caller.deliver)
			defer jsengine.FreeContext(id)

			ctx, ok := jsengine.Lookup(id)
			if !ok {
				return fmt.Errorf("jsenginectl: context %s vanished immediately after creation", id)
			}

			h := ctx.HeapStats()
			v, ok := ctx.ValueAt(h)
			if !ok {
				return fmt.Errorf("jsenginectl: heap_stats produced no value")
			}
			fmt.Println(v.String())
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print jsenginectl's version and engine diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("jsenginectl (jsengine runtime CLI)")
			fmt.Println("engine:", jsengine.EngineVersion())
			fmt.Println("sandboxed:", jsengine.EngineUsingSandbox())
			return nil
		},
	}
}
