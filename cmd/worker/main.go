package main

import (
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/Keyring-Network/gavryn-tutor/internal/bootstrap"
	"github.com/Keyring-Network/gavryn-tutor/internal/config"
	"github.com/Keyring-Network/gavryn-tutor/internal/websearch"
	"github.com/Keyring-Network/gavryn-tutor/internal/workflows"
)

var (
	loadConfig     = config.LoadWithOverlay
	dialTemporal   = client.Dial
	resolveSecrets = bootstrap.ResolveSecrets
	newSearcher    = func(cfg config.Config) (websearch.Searcher, func(), error) {
		searcher, err := bootstrap.NewInlineSearcher(cfg)
		if err != nil {
			return nil, nil, err
		}
		return searcher, searcher.Close, nil
	}
	newActivities   = workflows.NewSearchActivities
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
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
	if err := resolveSecrets(&cfg); err != nil {
		return err
	}
	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	searcher, closeSearcher, err := newSearcher(cfg)
	if err != nil {
		return err
	}
	defer closeSearcher()

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.WebSearchWorkflow)
	w.RegisterActivity(newActivities(searcher))

	log.Printf("Gavryn tutor worker started on task queue %s", cfg.TemporalTaskQueue)
	if err := w.Run(workerInterrupt()); err != nil {
		return err
	}

	return nil
}
