package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/flowpool/flowpool/cmd/flowpoold/handlers"
	kcf "github.com/flowpool/flowpool/pkg/configs/flowpoold"
	"github.com/flowpool/flowpool/pkg/domain/queue"
	kpg "github.com/flowpool/flowpool/pkg/domain/queue/postgres"
	"github.com/flowpool/flowpool/pkg/echoutil"
	"github.com/flowpool/flowpool/pkg/loop"
	"github.com/flowpool/flowpool/pkg/utils/filewatch"
)

func main() {

	configPath := flag.String("config-path", "", "flowpoold config path")
	loglevel := flag.String("loglevel", "", "log level. debug|info|warn|error|off (default: from config)")
	flag.Parse()

	conf, err := kcf.LoadFlowpooldConfig(*configPath)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}

	level := conf.LogLevel()
	if *loglevel != "" {
		level = *loglevel
	}

	e := echo.New()
	echoutil.SetLevel(e, level)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

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
	context.AfterFunc(ctx, func() {
		log.Println("shutting down...")
		graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.Shutdown(graceful); err != nil {
			log.Printf("error on shutdown: %s", err)
		}
	})

	q, err := kpg.New(ctx, conf.Database())
	if err != nil {
		log.Fatalf("can not connect database: %s", err)
	}

	// handlers
	{
		e.POST("/api/v1/pools", handlers.CreatePoolHandler(q))
		e.GET("/api/v1/pools", handlers.ListPoolsHandler(q))
		e.GET("/api/v1/pools/:pool", handlers.GetPoolHandler(q, "pool"))
		e.PUT("/api/v1/pools/:pool/paused", handlers.PutPoolPaused(q, "pool", true))
		e.DELETE("/api/v1/pools/:pool/paused", handlers.PutPoolPaused(q, "pool", false))

		e.POST("/api/v1/pools/:pool/runs", handlers.SubmitRunHandler(q, "pool"))
	}
	{
		e.GET("/api/v1/runs", handlers.FindRunHandler(q))
		e.GET("/api/v1/runs/:runId", handlers.GetRunHandler(q, "runId"))
		e.GET("/api/v1/runs/:runId/log", handlers.GetRunLogHandler(q, "runId"))
		e.DELETE("/api/v1/runs/:runId", handlers.InvalidateRunHandler(q, "runId"))
	}
	log.Println("registred routes:")
	for _, r := range e.Routes() {
		log.Println(r.Method, r.Path)
	}

	go requeueExpired(ctx, q, conf.RequeueInterval())

	if err := e.Start(":" + strconv.Itoa(conf.Port())); err != nil {
		e.Logger.Info(err)
	}
}

// requeueExpired returns Claimed runs with an expired lease to Waiting
// and fails expired Starting/Running runs, periodically.
func requeueExpired(ctx context.Context, q queue.Queue, interval time.Duration) {
	loop.Start(ctx, struct{}{}, func(ctx context.Context, _ struct{}) (struct{}, loop.Next) {
		n, err := q.Requeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, loop.Break(ctx.Err())
			}
			log.Printf("requeue failed: %s", err)
		} else if 0 < n {
			log.Printf("requeued %d expired runs", n)
		}
		return struct{}{}, loop.Continue(interval)
	})
}
