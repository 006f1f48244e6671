// Connects to an element manager and prints the decoded alarm stream.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carverauto/maestream/pkg/lifecycle"
	"github.com/carverauto/maestream/pkg/logger"
	"github.com/carverauto/maestream/pkg/mae"
	"github.com/carverauto/maestream/pkg/models"
)

func main() {
	var (
		host     = flag.String("host", "127.0.0.1", "Element manager host")
		port     = flag.Int("port", 4444, "Element manager port")
		resync   = flag.Bool("resync", true, "Request a full alarm replay after connecting")
		idle     = flag.Duration("idle", 90*time.Second, "Idle timeout")
		useTLS   = flag.Bool("tls", false, "Connect with TLS")
		insecure = flag.Bool("insecure", false, "Skip TLS certificate verification")
		caFile   = flag.String("ca", "", "CA bundle for server verification")
		verbose  = flag.Bool("verbose", false, "Client debug logging")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var clientLog logger.Logger = logger.NewTestLogger()

	if *verbose {
		var err error

		clientLog, err = lifecycle.CreateComponentLogger(ctx, "mae-tap", &logger.Config{
			Level:  "debug",
			Output: "stderr",
		})
		if err != nil {
			log.Fatalf("logger: %v", err)
		}
	}

	cfg := &mae.Config{
		Host:          *host,
		Port:          *port,
		SyncOnConnect: *resync,
		IdleTimeout:   models.Duration(*idle),
		TLS: mae.TLSSettings{
			Enabled:            *useTLS,
			InsecureSkipVerify: *insecure,
			CAFile:             *caFile,
		},
	}

	client, err := mae.NewClient(cfg, clientLog)
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	if err := client.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}
	defer client.Stop()

	log.Printf("tapping %s", cfg.Addr())

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-client.Events():
			printEvent(ev)
		}
	}
}

func printEvent(ev mae.Event) {
	switch ev.Kind {
	case mae.EventAlarmReceived:
		parts := make([]string, 0, 8)
		for _, key := range ev.Fields.Keys() {
			parts = append(parts, key+"="+ev.Fields.Get(key))
		}

		log.Printf("alarm      %s", strings.Join(parts, " "))
	case mae.EventHandshake:
		log.Printf("keepalive  %s", ev.Timestamp)
	case mae.EventError:
		log.Printf("error      %v", ev.Err)
	default:
		log.Printf("%s", ev.Kind)
	}
}
