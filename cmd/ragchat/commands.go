package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"ragchat/internal/app"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/session"
	"ragchat/internal/tui"
)

type rootOptions struct {
	configPath string
	docs       []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "ragchat",
		Short: "Chat with a hosted model, optionally restricted to your PDFs",
		Long: `ragchat opens a terminal chat with a hosted language model. Upload PDF
documents to make it answer only from their content.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return runTUI(opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragchat/config.yaml if not provided)")
	root.PersistentFlags().StringArrayVar(&opts.docs, "doc", nil, "PDF to index at start (repeatable)")

	root.AddCommand(newAskCmd(opts), newConfigCmd(opts))
	return root
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and print the answer",
		Long: `Ask one question without the TUI. The API key is read from the environment
variable named by llm.api_key_env. With --doc the answer comes only from those PDFs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAsk(ctx, opts, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, data)
			return nil
		},
	}
}

func loadConfig(path string) (*config.AppConfig, string, error) {
	if path == "" {
		cfg, p, err := config.LoadDefault()
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, p, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, path, nil
}

func setup(opts *rootOptions) (*config.AppConfig, *zap.Logger, *session.Session, error) {
	cfg, path, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("config loaded", zap.String("path", path), zap.String("model", cfg.LLM.Model),
		zap.String("embedder", cfg.Embedder.Type), zap.String("vector_store", cfg.VectorStore.Type))
	s, err := app.NewSession(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}
	return cfg, log, s, nil
}

func runTUI(opts *rootOptions) error {
	cfg, log, s, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	m := tui.New(s, tui.Options{
		EnvKey:        cfg.APIKeyFromEnv(),
		Docs:          opts.docs,
		ReadDocuments: app.ReadDocuments,
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	m.Shutdown()
	// The scratch directory only lives as long as the program.
	if cerr := s.ClearContext(context.Background()); cerr != nil && !errors.Is(cerr, domain.ErrLocked) {
		log.Warn("cleanup failed", zap.Error(cerr))
	}
	return err
}

func runAsk(ctx context.Context, opts *rootOptions, question string, out io.Writer) error {
	cfg, log, s, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	key := cfg.APIKeyFromEnv()
	if key == "" {
		return fmt.Errorf("set %s to your API key", cfg.LLM.APIKeyEnv)
	}
	if err := s.SubmitKey(ctx, key); err != nil {
		return err
	}
	defer func() { _ = s.ClearContext(context.Background()) }()

	if len(opts.docs) > 0 {
		docs, err := app.ReadDocuments(opts.docs)
		if err != nil {
			return err
		}
		if _, err := s.Ingest(ctx, docs); err != nil {
			return err
		}
	}
	reply, err := s.Send(ctx, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, strings.TrimSpace(reply.Text))
	for i, src := range reply.Sources {
		fmt.Fprintf(out, "\n[%d] %s (chunk %d)", i+1, src.DocumentID, src.Index)
	}
	if len(reply.Sources) > 0 {
		fmt.Fprintln(out)
	}
	return nil
}
