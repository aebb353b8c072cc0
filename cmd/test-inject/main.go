// Command test-inject is a manual test for report replay.
// It waits 3 seconds, then presses the keys of each report the text maps to.
// Focus a text editor before the countdown finishes.
//
// Usage:
//
//	go run ./cmd/test-inject [--text "..."]
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/blekbd/internal/gatt"
	"github.com/chaz8081/blekbd/internal/inject"
)

func main() {
	text := flag.String("text", "Hello from blekbd!", "text to type")
	flag.Parse()

	reports, err := inject.Reports(*text)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Will replay %d reports for %q in 3 seconds...\n", len(reports), *text)
	fmt.Println("Focus a text editor now!")

	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	replayer := inject.NewReplayer(slog.Default())
	for _, r := range reports {
		replayer.Replay(gatt.HandleHIDInputReport, r[:])
		time.Sleep(10 * time.Millisecond)
	}

	fmt.Println("\nDone!")
}
