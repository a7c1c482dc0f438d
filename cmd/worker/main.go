package main

import (
	"os"

	"github.com/curtisnewbie/lettuce"
	"github.com/curtisnewbie/lettuce/config"
	"github.com/curtisnewbie/lettuce/encoding/json"
	"github.com/curtisnewbie/lettuce/flow"
)

func main() {
	rail := lettuce.Bootstrap(os.Args)

	worker := config.GetPropStr(lettuce.PropWorkerName)
	events := config.GetPropStrSlice(lettuce.PropWorkerEvents)
	if len(events) < 1 {
		rail.Fatalf("No events to listen to, configure '%v'", lettuce.PropWorkerEvents)
	}

	l, err := lettuce.NewWorker(rail, worker)
	if err != nil {
		rail.Fatalf("Failed to create worker '%v', %v", worker, err)
	}

	for _, evt := range events {
		if err := l.AddListener(rail, evt, logEvent); err != nil {
			rail.Fatalf("Failed to listen to '%v', %v", evt, err)
		}
	}

	if err := l.Consume(rail); err != nil {
		rail.Fatalf("Worker '%v' stopped, %v", worker, err)
	}
	rail.Infof("Worker '%v' exited", worker)
}

func logEvent(rail flow.Rail, evt lettuce.Event) error {
	s, err := json.SWriteIndent(evt)
	if err != nil {
		return err
	}
	rail.Infof("Received event:\n%s", s)
	return nil
}
