// timerdemo demonstrates the Timer gateway's two Host-level conveniences:
// a one-shot SendAfter and a recurring SendCron, both running against the
// real WallDelayScheduler.
//
// Run:  go run ./cmd/timerdemo
package main

import (
	"fmt"
	"log"
	"time"

	"github.com/offbynull-go/peernetic"
)

func main() {
	host := peernetic.NewHost(peernetic.MustAddress("node1"))
	go host.Run()
	defer host.Stop()

	fired := make(chan string, 16)
	host.RegisterActor("listener", func(address peernetic.Address) peernetic.Behavior {
		return func(ctx *peernetic.Context) error {
			for {
				fired <- fmt.Sprintf("%v", ctx.Message().Payload())
				ctx.Suspend()
			}
		}
	})

	if _, err := host.SendAfter(peernetic.MustAddress("listener", "1"), "one-shot fired", 200*time.Millisecond); err != nil {
		log.Fatalf("SendAfter: %v", err)
	}
	fmt.Println("scheduled a one-shot 200ms from now")

	id, err := host.SendCron(peernetic.MustAddress("listener", "2"), "cron tick", "* * * * *")
	if err != nil {
		log.Fatalf("SendCron: %v", err)
	}
	fmt.Printf("scheduled a cron job (id=%s, fires at the top of the next minute)\n", id)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-fired:
			fmt.Printf("  fired: %s\n", msg)
		case <-deadline:
			fmt.Println("\ndone observing; the cron job keeps firing once a minute until CancelSchedule is called")
			if err := host.CancelSchedule(id); err != nil {
				log.Printf("cancel: %v", err)
			}
			return
		}
	}
}
