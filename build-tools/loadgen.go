//go:build ignore

// Run: go run ./build-tools/loadgen.go -url nats://localhost:4222 -subject changefeed.public.teams -rps 5 -duration 60s -dup 0.3

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	mrand "math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
)

type teamRow struct {
	ID               int    `json:"id"`
	ContactPerson    string `json:"contact_person"`
	Name             string `json:"name"`
	ApprovedInSanity bool   `json:"approved_in_sanity"`
}

type changeEvent struct {
	Type            string   `json:"type"`
	Schema          string   `json:"schema"`
	Table           string   `json:"table"`
	CommitTimestamp string   `json:"commit_timestamp"`
	Record          teamRow  `json:"record"`
	OldRecord       *teamRow `json:"old_record,omitempty"`
}

func main() {
	var (
		url      = flag.String("url", nats.DefaultURL, "nats server url")
		subject  = flag.String("subject", "changefeed.public.teams", "change feed subject")
		rps      = flag.Int("rps", 5, "events per second target")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		dup      = flag.Float64("dup", 0.3, "share of events repeating the previous team")
		domain   = flag.String("domain", "example.com", "mail domain of generated contacts")
	)
	flag.Parse()

	nc, err := nats.Connect(*url, nats.Name("teamrelay-loadgen"))
	if err != nil {
		fmt.Printf("nats connect error: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	fmt.Printf("loadgen → url=%s subject=%s rps=%d duration=%s dup=%.2f\n", *url, *subject, *rps, duration.String(), *dup)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	end := time.Now().Add(*duration)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0 // 10 ticks in sec
	accum := 0.0

	var (
		last      *changeEvent
		published int
	)

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)

			for i := 0; i < batch; i++ {
				ev := last
				if ev == nil || mrand.Float64() >= *dup {
					ev = randomEvent(*domain)
				}
				ev.CommitTimestamp = now.UTC().Format(time.RFC3339Nano)
				last = ev

				val, _ := json.Marshal(ev)
				if err = nc.Publish(*subject, val); err != nil {
					fmt.Printf("publish error: %v\n", err)
					continue
				}
				published++
			}
		}
	}

	fmt.Println("flushing…")
	_ = nc.FlushTimeout(2 * time.Second)
	fmt.Printf("done, published=%d\n", published)
}

func randomEvent(domain string) *changeEvent {
	id := mrand.Intn(10_000)
	row := teamRow{
		ID:               id,
		ContactPerson:    fmt.Sprintf("captain%d@%s", id, domain),
		Name:             fmt.Sprintf("Team %d", id),
		ApprovedInSanity: mrand.Intn(4) != 0, // some updates stay unapproved
	}

	return &changeEvent{
		Type:      "UPDATE",
		Schema:    "public",
		Table:     "teams",
		Record:    row,
		OldRecord: &teamRow{ID: id},
	}
}
