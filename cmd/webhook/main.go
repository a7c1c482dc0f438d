package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/curtisnewbie/lettuce"
	"github.com/curtisnewbie/lettuce/webhook"
)

func main() {
	rail := lettuce.Bootstrap(os.Args)

	pub, err := lettuce.NewPublisher(rail)
	if err != nil {
		rail.Fatalf("Failed to create publisher, %v", err)
	}
	defer func() {
		if err := pub.Close(rail); err != nil {
			rail.Errorf("Failed to close publisher, %v", err)
		}
	}()

	server := webhook.NewServer(webhook.NewEngine(rail, pub))
	errc, err := webhook.StartServer(rail, server)
	if err != nil {
		rail.Errorf("Failed to start http server, %v", err)
		return
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		rail.Infof("Received OS signal: %v, webhook exiting", sig)
	case err := <-errc:
		rail.Errorf("Http server stopped, %v", err)
	}
	webhook.ShutdownServer(rail, server)
}
