// Command test-hotkey is a manual test for the global key hook.
// Run it, then press Ctrl+Shift+P to see pairing button edges. Every other
// key is printed as the keyboard report it would produce.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--keys ctrl,shift,p]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chaz8081/blekbd/internal/hid"
	"github.com/chaz8081/blekbd/internal/hotkey"
	"github.com/chaz8081/blekbd/internal/keysource"
)

func main() {
	keys := flag.String("keys", "ctrl,shift,p", "pairing button chord")
	flag.Parse()

	chord := strings.Split(*keys, ",")
	fmt.Printf("Listening for %s as the pairing button...\n", strings.Join(chord, "+"))
	fmt.Println("Press Ctrl+C to exit.")

	listener := hotkey.NewListener(chord)
	src := keysource.NewHook(listener, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		cancel()
		listener.Stop()
	}()

	reports := make(chan hid.RawReport, 16)
	go func() { _ = src.Run(ctx, reports) }()
	go func() {
		for r := range reports {
			fmt.Printf("report %s\n", r)
		}
	}()

	go func() {
		for ev := range listener.Events() {
			if ev.Pressed {
				fmt.Println(">>> PAIRING PRESSED")
			} else {
				fmt.Println("<<< PAIRING RELEASED")
			}
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
