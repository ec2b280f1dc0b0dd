package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	kca "github.com/flowpool/flowpool/pkg/configs/arrayd"
	"github.com/flowpool/flowpool/pkg/store"
	"github.com/flowpool/flowpool/pkg/utils/filewatch"

	"github.com/flowpool/flowpool/cmd/arrayd/server"
)

func main() {

	configPath := flag.String("config-path", "", "arrayd config path")
	flag.Parse()

	conf, err := kca.LoadArraydConfig(*configPath)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}

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

	if err := os.MkdirAll(conf.Root(), 0o755); err != nil {
		log.Fatalf("can not prepare store root: %s", err)
	}
	s := store.New(conf.Root())

	opts := []server.Option{server.WithLogLevel(conf.LogLevel())}
	if key := conf.APIKey(); key != "" {
		opts = append(opts, server.WithAPIKey(key))
	}

	svr := server.Start(ctx, server.OnPort(conf.Port()), server.Endpoints(s), opts...)
	log.Printf("arrayd is serving %s on port %d", conf.Root(), svr.Port)

	if err := <-svr.ServerStop; err != nil && ctx.Err() == nil {
		log.Fatalf("server stopped: %s", err)
	}
	log.Println("bye")
}
