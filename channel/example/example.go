package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/webbmaffian/go-gbl/channel"
)

// runWatcher clears the channel once, then waits up to 15 seconds for it to
// become readable.
func runWatcher(ctx context.Context, ch *channel.ByteChannel) {
	h, err := ch.Open(ctx, channel.ONonblock)

	if err != nil {
		log.Println("watcher:", err)
		return
	}

	defer h.Close()

	if err = h.Control(channel.OpClear); err != nil {
		log.Println("watcher: clear failed:", err)
		return
	}

	p := channel.NewPoller()
	defer p.Close()

	if err = p.Add(h, channel.PollIn|channel.PollPri, false); err != nil {
		log.Println("watcher:", err)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	events, err := p.Wait(waitCtx, 1)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.Println("watcher: no data input within 15 seconds")
	case err != nil:
		log.Println("watcher:", err)
	case len(events) > 0:
		log.Println("watcher: channel is not empty:", events[0].Events)
	}

	if err = p.Remove(h); err != nil {
		log.Println("watcher:", err)
	}
}

// runServer reads whatever the client writes. It is told about new data by a
// subscription and only reads non-blocking.
func runServer(ctx context.Context, ch *channel.ByteChannel) {
	h, err := ch.Open(ctx, channel.ONonblock)

	if err != nil {
		log.Println("server:", err)
		return
	}

	defer h.Close()

	ready := make(chan struct{}, 1)

	err = h.Subscribe(channel.NotifierFunc(func(n channel.Notification) {
		select {
		case ready <- struct{}{}:
		default:
		}
	}))

	if err != nil {
		log.Println("server:", err)
		return
	}

	log.Println("server: started")
	buf := make([]byte, ch.Cap())

	for {
		select {
		case <-ctx.Done():
			log.Println("server: closing")
			return
		case <-ready:
		}

		for {
			n, err := h.Read(buf)

			if errors.Is(err, channel.ErrWouldBlock) {
				break
			}

			if err != nil {
				log.Println("server:", err)
				return
			}

			stats(ch, "server", "READ", string(buf[:n]))
		}
	}
}

func runClient(ctx context.Context, ch *channel.ByteChannel) {
	h, err := ch.Open(ctx, 0)

	if err != nil {
		log.Println("client:", err)
		return
	}

	defer h.Close()

	log.Println("client: started")
	stats(ch, "client", "INIT", "")

	for {
		msg := fmt.Sprintf("%010d", time.Now().Unix())

		if _, err := h.WriteAll([]byte(msg)); err != nil {
			log.Println("client:", err)
			break
		}

		stats(ch, "client", "WRITE", msg)

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			continue
		}

		break
	}

	log.Println("client: closing")
}

func stats(ch *channel.ByteChannel, who, what, msg string) {
	s := ch.Stats()
	log.Printf("%s: %s - %5s | %04d bytes (%s, %d notifications)\n", who, msg, what, s.Occupied, ch.State(), s.Notifications)
}
