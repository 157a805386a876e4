// Command chat runs an intake conversation in the terminal against the
// local data files.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hackgods/clinic-intake-agent/internal/app/bootstrap"
	"github.com/hackgods/clinic-intake-agent/internal/config"
	"github.com/hackgods/clinic-intake-agent/internal/intake"
	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger := logging.NewWithWriter(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap.New(ctx, cfg, logger, nil)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}
	defer a.Close()

	reply, err := a.Controller.Start(ctx)
	if err != nil {
		log.Fatalf("start session: %v", err)
	}
	printReply(reply)
	sessionID := reply.SessionID

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		text := strings.TrimSpace(in.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			break
		}

		reply, err := a.Controller.Handle(ctx, sessionID, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printReply(reply)
	}
	if err := in.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}
}

func printReply(r *intake.Reply) {
	for _, m := range r.Messages {
		fmt.Println(m)
		fmt.Println()
	}
}
