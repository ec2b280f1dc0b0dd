package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	kcr "github.com/flowpool/flowpool/pkg/configs/resultd"
	"github.com/flowpool/flowpool/pkg/pipeline"
	"github.com/flowpool/flowpool/pkg/pipeline/storepub"
	"github.com/flowpool/flowpool/pkg/pipeline/wslisten"
	"github.com/flowpool/flowpool/pkg/pipeline/wspub"
	"github.com/flowpool/flowpool/pkg/store/client"
	"github.com/flowpool/flowpool/pkg/utils/filewatch"
)

func main() {

	configPath := flag.String("config-path", "", "resultd config path")
	flag.Parse()

	conf, err := kcr.LoadResultdConfig(*configPath)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}

	logger := log.Default()

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

	// republish to viewers over WebSocket
	pub := wspub.New(conf.Serve().Path(), logger)
	defer pub.Close()

	// and persist into the array store
	storeOpts := []client.Option{}
	if key := conf.Store().APIKey(); key != "" {
		storeOpts = append(storeOpts, client.WithAPIKey(key))
	}
	sink := storepub.New(client.New(conf.Store().URL(), storeOpts...), logger)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(conf.Serve().Port()),
		Handler: pub,
	}
	context.AfterFunc(ctx, func() {
		graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(graceful); err != nil {
			logger.Printf("error on shutdown: %s", err)
		}
	})
	go func() {
		logger.Printf("republishing results on ws://0.0.0.0:%d%s", conf.Serve().Port(), conf.Serve().Path())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server stopped: %s", err)
		}
	}()

	listener := &wslisten.Listener{
		URL:      conf.Upstream(),
		Operator: pipeline.Tee(pub, sink),
		Backoff:  conf.Backoff(),
		Logger:   logger,
	}
	logger.Printf("listening on upstream %s", conf.Upstream())
	if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("listener stopped: %s", err)
	}
	logger.Println("bye")
}
