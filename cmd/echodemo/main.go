// echodemo spins up a single Host, registers an echo actor, and exercises
// both the fire-and-forget Send path and the blocking Request/reply path.
//
// Run:  go run ./cmd/echodemo
package main

import (
	"fmt"
	"log"
	"time"

	"github.com/offbynull-go/peernetic"
)

type echoActor struct {
	name string
}

func (e *echoActor) run(ctx *peernetic.Context) error {
	for {
		msg := ctx.Message()
		switch payload := msg.Payload().(type) {
		case string:
			fmt.Printf("  [%s/%s] received %q from %s\n", e.name, ctx.Self(), payload, msg.Source())
			if !msg.Source().IsEmpty() {
				if err := ctx.Reply(fmt.Sprintf("echo from %s: %s", e.name, payload)); err != nil {
					log.Printf("reply failed: %v", err)
				}
			}
		default:
			fmt.Printf("  [%s/%s] received %T %v\n", e.name, ctx.Self(), payload, payload)
		}
		ctx.Suspend()
	}
}

func main() {
	host := peernetic.NewHost(peernetic.MustAddress("node1"))
	go host.Run()
	defer host.Stop()

	host.RegisterActor("echo", func(address peernetic.Address) peernetic.Behavior {
		a := &echoActor{name: "echo"}
		return a.run
	})

	fmt.Println("--- fire-and-forget ---")
	if err := host.Send(peernetic.Address{}, peernetic.MustAddress("echo", "1"), "hello there"); err != nil {
		log.Fatalf("send failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	fmt.Println("\n--- request/reply ---")
	reply, err := host.Request(peernetic.MustAddress("echo", "1"), "ping")
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	fmt.Printf("  got reply: %v\n", reply)

	fmt.Println("\n--- metrics snapshot ---")
	for k, v := range host.Metrics().Snapshot() {
		fmt.Printf("  %s = %d\n", k, v)
	}
}
