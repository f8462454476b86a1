package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ONSdigital/log.go/v2/log"
	"github.com/pkg/errors"

	"github.com/ONSdigital/dp-search-index-migration/config"
	"github.com/ONSdigital/dp-search-index-migration/task"
)

const serviceName = "dp-search-index-migration"

var (
	// BuildTime represents the time in which the service was built
	BuildTime string
	// GitCommit represents the commit (SHA-1) hash of the service that is running
	GitCommit string
	// Version represents the version of the service that is running
	Version string
)

func main() {
	log.Namespace = serviceName
	ctx := context.Background()

	result, err := run(ctx)
	if err != nil {
		log.Fatal(ctx, "fatal runtime error", err)
		os.Exit(1)
	}
	if result != nil && !result.Success {
		log.Info(ctx, "one or more migrations did not succeed", log.Data{"summary": result.Report.Summary()})
		os.Exit(1)
	}
}

func run(ctx context.Context) (*task.Result, error) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Read config
	cfg, err := config.Get()
	if err != nil {
		return nil, errors.Wrap(err, "unable to retrieve service configuration")
	}
	log.Info(ctx, "config on startup", log.Data{"config": cfg, "build_time": BuildTime, "git-commit": GitCommit})

	migration := task.New(cfg)

	// Run the task in the background, using a result channel and an error channel for fatal errors
	errChan := make(chan error, 1)
	resultChan := make(chan *task.Result, 1)
	go func() {
		result, err := migration.Run(ctx)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- result
	}()

	// blocks until completion, an os interrupt or a fatal error occurs
	select {
	case err := <-errChan:
		log.Error(ctx, "task error received", err)
		return nil, err
	case sig := <-signals:
		log.Info(ctx, "os signal received, cancelling run", log.Data{"signal": sig})
		cancel()
		// the task drains in-flight units and reports them as cancelled
		select {
		case err := <-errChan:
			return nil, err
		case result := <-resultChan:
			return result, nil
		}
	case result := <-resultChan:
		log.Info(ctx, "task complete", log.Data{"summary": result.Report.Summary()})
		return result, nil
	}
}
