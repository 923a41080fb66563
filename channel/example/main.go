package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"

	"github.com/webbmaffian/go-gbl/channel"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ch, err := channel.NewByteChannel(16)

	if err != nil {
		log.Println(err)
		return
	}

	var wg sync.WaitGroup

	wg.Add(3)

	go func() {
		defer wg.Done()
		runWatcher(ctx, ch)
	}()

	go func() {
		defer wg.Done()
		runServer(ctx, ch)
	}()

	go func() {
		defer wg.Done()
		runClient(ctx, ch)
	}()

	<-ctx.Done()

	if err := ch.Close(); err != nil {
		log.Println(err)
	}

	wg.Wait()
}
