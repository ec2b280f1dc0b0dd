package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	kcw "github.com/flowpool/flowpool/pkg/configs/workerd"
	"github.com/flowpool/flowpool/pkg/domain"
	kpg "github.com/flowpool/flowpool/pkg/domain/queue/postgres"
	"github.com/flowpool/flowpool/pkg/engine"
	"github.com/flowpool/flowpool/pkg/utils/filewatch"
	"github.com/flowpool/flowpool/pkg/utils/retry"
	"github.com/flowpool/flowpool/pkg/worker"
)

func main() {

	configPath := flag.String("config-path", "", "workerd config path")
	name := flag.String("name", worker.NewName(), "worker name, unique among workers of the pool")
	flag.Parse()

	conf, err := kcw.LoadWorkerdConfig(*configPath)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}

	logger := log.Default()
	logger.SetPrefix("[" + *name + "] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	{
		wctx, cancel, err := filewatch.UntilModifyContext(ctx, *configPath)
		if err != nil {
			log.Fatalf("can not watch configration: %s", err)
		}
		defer cancel()
		ctx = wctx
	}

	q, err := kpg.New(ctx, conf.Database())
	if err != nil {
		logger.Fatalf("can not connect database: %s", err)
	}

	// the pool may be registered after workers boot; wait for it,
	// jittered so a fleet does not poll in lockstep.
	pool, err := retry.Blocking(
		ctx, retry.Jitter(retry.StaticBackoff(3*time.Second), time.Second),
		func() (domain.WorkPool, error) {
			p, err := q.GetPool(ctx, conf.Pool())
			if errors.Is(err, domain.ErrMissing) {
				logger.Printf("pool %s is not registered yet. waiting...", conf.Pool())
				return domain.WorkPool{}, retry.ErrRetry
			}
			return p, err
		},
	)
	if err != nil {
		logger.Fatalf("can not get pool %s: %s", conf.Pool(), err)
	}
	if pool.WorkerType != conf.WorkerType() {
		logger.Fatalf(
			"pool %s expects %s workers, but this worker is configured as %s",
			pool.Name, pool.WorkerType, conf.WorkerType(),
		)
	}

	runner, translator, err := buildRunner(ctx, conf, logger)
	if err != nil {
		logger.Fatalf("can not build runner: %s", err)
	}

	w := &worker.Worker{
		Name:         *name,
		Pool:         conf.Pool(),
		Queue:        q,
		Runner:       runner,
		Translator:   translator,
		WorkDir:      conf.WorkDir(),
		PollInterval: conf.PollInterval(),
		Lease:        conf.Lease(),
		Heartbeat:    conf.Heartbeat(),
		Logger:       logger,
	}

	logger.Printf("serving pool %s as %s worker", conf.Pool(), conf.WorkerType())
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("worker stopped: %s", err)
	}
	logger.Println("bye")
}

func buildRunner(ctx context.Context, conf *kcw.WorkerdConfig, logger *log.Logger) (engine.Runner, engine.Translator, error) {
	switch conf.WorkerType() {
	case domain.ProcessWorker:
		return &engine.ProcessRunner{Dir: conf.WorkDir()}, engine.Identity(), nil

	default:
		ep, err := engine.ResolveEndpoint(conf.Engine().Endpoint())
		if err != nil {
			return nil, engine.Translator{}, err
		}
		flavor, err := engine.DetectFlavor(ctx, ep)
		if err != nil {
			logger.Printf("engine flavor detection failed: %s (continuing)", err)
		} else {
			logger.Printf("engine %s is %s", ep, flavor)
		}

		runner, err := engine.NewEngineRunner(ep)
		if err != nil {
			return nil, engine.Translator{}, err
		}
		translator := engine.Translator{
			ContainerWorkDir: conf.Engine().ContainerWorkDir(),
			HostWorkDir:      conf.Engine().HostWorkDir(),
		}
		return runner, translator, nil
	}
}
