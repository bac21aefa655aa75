package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.temporal.io/sdk/client"

	"github.com/Keyring-Network/gavryn-tutor/internal/agent"
	"github.com/Keyring-Network/gavryn-tutor/internal/api"
	"github.com/Keyring-Network/gavryn-tutor/internal/bootstrap"
	"github.com/Keyring-Network/gavryn-tutor/internal/config"
	"github.com/Keyring-Network/gavryn-tutor/internal/events"
	"github.com/Keyring-Network/gavryn-tutor/internal/websearch"
	"github.com/Keyring-Network/gavryn-tutor/internal/workflows"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig        = config.LoadWithOverlay
	newEmbedder       = bootstrap.NewEmbedder
	loadKnowledge     = bootstrap.LoadKnowledge
	newProvider       = bootstrap.NewProvider
	openStores        = bootstrap.OpenStores
	newInlineSearcher = func(cfg config.Config) (websearch.Searcher, func(), error) {
		searcher, err := bootstrap.NewInlineSearcher(cfg)
		if err != nil {
			return nil, nil, err
		}
		return searcher, searcher.Close, nil
	}
	dialTemporal       = client.Dial
	newWorkflowService = workflows.NewService
	newBroker          = events.NewBroker
	newServer          = func(opts api.Options, cfg config.Config) server {
		return api.NewServer(opts, cfg)
	}
	notifyContext = signal.NotifyContext
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := bootstrap.ResolveSecrets(&cfg); err != nil {
		return err
	}
	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	classifier, err := bootstrap.NewClassifier(cfg)
	if err != nil {
		return err
	}
	systemPrompt, err := bootstrap.LoadSystemPrompt(cfg)
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	kb, err := loadKnowledge(ctx, cfg, embedder)
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	searcher, closeSearcher, err := buildSearcher(cfg)
	if err != nil {
		return err
	}
	defer closeSearcher()

	tutor, err := agent.New(agent.Options{
		Classifier:   classifier,
		Retriever:    kb.Retriever,
		Provider:     provider,
		Searcher:     searcher,
		Sessions:     stores.Sessions,
		SystemPrompt: systemPrompt,
		History:      agent.HistoryPolicy{MaxTurns: cfg.HistoryMaxTurns},
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	server := newServer(api.Options{
		Tutor:         tutor,
		Feedback:      stores.Feedback,
		Broker:        newBroker(),
		Probes:        stores.Probes,
		KnowledgeSize: len(kb.Entries),
		Logger:        logger,
	}, cfg)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Gavryn tutor listening on %s (%d knowledge base entries, threshold %.2f)", addr, len(kb.Entries), kb.Retriever.Threshold())
	if err := server.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// buildSearcher picks where web searches run. The returned close func is never
// nil.
func buildSearcher(cfg config.Config) (websearch.Searcher, func(), error) {
	switch mode := strings.ToLower(strings.TrimSpace(cfg.WebSearchMode)); mode {
	case "", "inline":
		return newInlineSearcher(cfg)
	case "temporal":
		temporalClient, err := dialTemporal(client.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			return nil, nil, err
		}
		closeClient := func() {}
		if temporalClient != nil {
			closeClient = temporalClient.Close
		}
		return newWorkflowService(temporalClient, cfg.TemporalTaskQueue), closeClient, nil
	case "off", "disabled":
		return nil, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported web search mode: %s", mode)
	}
}
