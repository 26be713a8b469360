package db

import (
	"log"

	"github.com/jonathan/netmirror/internal/loader"
)

func logDropped(a loader.Attempt) {
	log.Printf("[db] attempt not queued, dropped load #%d (%s)", a.Generation, a.Outcome)
}

func logWriteFailure(a *Attempt, err error) {
	log.Printf("[db] failed to store load #%d: %v", a.Generation, err)
}
