// Package main is the entry point for the duet CLI.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/duetlabs/persona-duet/internal/analytics"
	"github.com/duetlabs/persona-duet/internal/config"
	"github.com/duetlabs/persona-duet/internal/eventbus"
	"github.com/duetlabs/persona-duet/internal/export"
	"github.com/duetlabs/persona-duet/internal/ledger"
	"github.com/duetlabs/persona-duet/internal/llm"
	"github.com/duetlabs/persona-duet/internal/model"
	"github.com/duetlabs/persona-duet/internal/ops"
	"github.com/duetlabs/persona-duet/internal/persona"
	"github.com/duetlabs/persona-duet/internal/render"
	"github.com/duetlabs/persona-duet/internal/scheduler"
	"github.com/duetlabs/persona-duet/pkg/logger"
)

const version = "1.0.0"

var speedDelays = map[string]time.Duration{
	"slow":   3000 * time.Millisecond,
	"medium": 2000 * time.Millisecond,
	"fast":   1000 * time.Millisecond,
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	root := &cobra.Command{
		Use:           "duet",
		Short:         "Run turn-based conversations between two AI personas",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newStartCmd(cfg, log),
		newPersonasCmd(cfg, log),
		newModelsCmd(cfg),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadRegistry(cfg *config.Config, log *logger.Logger) (*persona.Registry, error) {
	reg := persona.NewDefaultRegistry(nil)
	if cfg.PersonaFile != "" {
		if err := reg.LoadFile(cfg.PersonaFile); err != nil {
			return nil, err
		}
		log.Info("loaded persona file", zap.String("path", cfg.PersonaFile))
	}
	return reg, nil
}

func newBackend(cfg *config.Config) (llm.Client, error) {
	return llm.NewClient(llm.Config{
		Provider:        llm.Provider(cfg.Backend),
		OllamaHost:      cfg.OllamaHost,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		Timeout:         cfg.RequestTimeout,
	})
}

func newStartCmd(cfg *config.Config, log *logger.Logger) *cobra.Command {
	var (
		topic       string
		maxTurns    int
		speed       string
		modelName   string
		prompt      string
		personaKeys []string
		randomPair  bool
		exportFmt   string
		exportPath  string
		interactive bool
		compact     bool
		summarize   bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a persona conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			delay, ok := speedDelays[speed]
			if !ok {
				return fmt.Errorf("unknown speed %q (want slow, medium or fast)", speed)
			}

			var format export.Format
			if exportFmt != "" {
				f, err := export.ParseFormat(exportFmt)
				if err != nil {
					return err
				}
				format = f
			}

			reg, err := loadRegistry(cfg, log)
			if err != nil {
				return err
			}

			pair, err := selectPair(reg, personaKeys, randomPair)
			if err != nil {
				return err
			}

			if prompt == "" {
				if interactive {
					prompt, err = readPrompt(cmd)
					if err != nil {
						return err
					}
				} else {
					prompt = "Introduce yourselves and start a conversation."
				}
			}

			backend, err := newBackend(cfg)
			if err != nil {
				return err
			}

			if modelName == "" {
				modelName = cfg.DefaultModel
			}

			led := ledger.New(ledger.Options{
				MaxRetain:         cfg.MaxRetain,
				ContextWindowSize: cfg.ContextWindowSize,
				Topic:             topic,
			})
			analyzer := analytics.NewAnalyzer(backend, modelName, log)
			sched := scheduler.New(led, backend, analyzer, pair, log.WithConversation(topic, pair.Primary.DisplayName, pair.Secondary.DisplayName))

			var bus *eventbus.Publisher
			if cfg.NATSURL != "" {
				bus, err = eventbus.Connect(cfg.NATSURL, cfg.NATSSubject, log)
				if err != nil {
					log.Warn("event mirroring disabled", zap.Error(err))
				} else {
					defer bus.Close()
				}
			}

			var opsServer *ops.Server
			if cfg.OpsAddr != "" {
				opsServer = ops.New(cfg.OpsAddr, backend, log)
				opsServer.Start()
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					opsServer.Shutdown(ctx)
				}()
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				<-sigCh
				fmt.Fprintln(os.Stderr, "\nstopping after the current turn…")
				sched.Stop()
				<-sigCh
				cancel()
			}()

			r := render.New(pair.Primary.DisplayName)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for ev := range sched.Events() {
					if line := r.Event(ev); line != "" {
						fmt.Println(line)
					}
					if bus != nil {
						bus.Publish(ev)
					}
				}
			}()

			err = sched.Start(ctx, prompt, scheduler.Options{
				Topic:            topic,
				MaxTurns:         maxTurns,
				TurnDelay:        delay,
				Model:            modelName,
				CompactEnabled:   compact,
				CompactThreshold: cfg.CompactThreshold,
				KeepRecent:       cfg.KeepRecent,
			})
			if err != nil {
				if errors.Is(err, llm.ErrBackendUnavailable) {
					return fmt.Errorf("cannot start conversation: %w", err)
				}
				return err
			}
			wg.Wait()

			fmt.Println(r.Statistics(analytics.Statistics(led.All(), led.StartTime(), nil)))

			if summarize {
				sum, err := analyzer.Summarize(cmd.Context(), led.All(), model.SummaryKindFinal, pair)
				if err != nil {
					log.Warn("final summary unavailable", zap.Error(err))
				} else {
					fmt.Println(r.Summary(sum))
				}
			}

			if format != "" {
				path, err := export.Write(led, format, exportPath)
				if err != nil {
					return err
				}
				fmt.Printf("transcript exported to %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "conversation topic")
	cmd.Flags().IntVarP(&maxTurns, "max-turns", "n", 10, "maximum number of turns (0 = unlimited)")
	cmd.Flags().StringVar(&speed, "speed", "medium", "inter-turn pacing: slow, medium or fast")
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "model name for the generation backend")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "initial prompt that seeds the conversation")
	cmd.Flags().StringSliceVar(&personaKeys, "personas", nil, "pair of persona keys, e.g. philosopher,comedian")
	cmd.Flags().BoolVar(&randomPair, "random", false, "pick a random persona pair")
	cmd.Flags().StringVar(&exportFmt, "export", "", "export format at conversation end: json or md")
	cmd.Flags().StringVarP(&exportPath, "output", "o", "", "export file path (default: auto-generated)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "prompt on stdin for the initial prompt")
	cmd.Flags().BoolVar(&compact, "compact", false, "summarize older context when the window fills up")
	cmd.Flags().BoolVar(&summarize, "summary", false, "print a conversation summary at the end")

	return cmd
}

func selectPair(reg *persona.Registry, keys []string, random bool) (model.PersonaPair, error) {
	if random || len(keys) == 0 {
		primary, secondary, err := reg.RandomPair()
		if err != nil {
			return model.PersonaPair{}, err
		}
		return model.PersonaPair{Primary: primary, Secondary: secondary}, nil
	}
	if len(keys) != 2 {
		return model.PersonaPair{}, fmt.Errorf("--personas needs exactly two keys, got %d", len(keys))
	}
	primary, ok := reg.LookupByKey(keys[0])
	if !ok {
		return model.PersonaPair{}, fmt.Errorf("unknown persona %q", keys[0])
	}
	secondary, ok := reg.LookupByKey(keys[1])
	if !ok {
		return model.PersonaPair{}, fmt.Errorf("unknown persona %q", keys[1])
	}
	return model.PersonaPair{Primary: primary, Secondary: secondary}, nil
}

func readPrompt(cmd *cobra.Command) (string, error) {
	fmt.Fprint(os.Stderr, "Initial prompt: ")
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("initial prompt must not be empty")
	}
	return line, nil
}

func newPersonasCmd(cfg *config.Config, log *logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List available personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cfg, log)
			if err != nil {
				return err
			}
			keys := reg.Keys()
			personas := reg.All()
			violations := make([][]string, len(personas))
			for i, p := range personas {
				violations[i] = persona.Validate(p)
			}
			r := render.New("")
			fmt.Print(r.PersonaList(keys, personas, violations))
			return nil
		},
	}
}

func newModelsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models available on the generation backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := newBackend(cfg)
			if err != nil {
				return err
			}
			models, err := backend.ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("list models from %s: %w", backend.Name(), err)
			}
			for _, m := range models {
				fmt.Println(m)
			}
			return nil
		},
	}
}
