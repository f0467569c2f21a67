// main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quickchat/quickcall/internal/config"
	qsignal "github.com/quickchat/quickcall/internal/signal"

	logging "github.com/ipfs/go-log/v2"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
	cfgPath  = flag.String("config", "quickcall.json", "Path to the config file")
	server   = flag.String("server", "", "Signaling server URL (overrides config)")
	logLevel = flag.String("log", "info", "Log level: debug, info, warn, error")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("quickcall v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	if lvl, err := logging.LevelFromString(*logLevel); err == nil {
		logging.SetAllLoggers(lvl)
	} else {
		fmt.Fprintf(os.Stderr, "Error: unknown log level '%s'\n", *logLevel)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	switch command := args[0]; command {
	case "peer":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: peer command requires a user id")
			fmt.Fprintln(os.Stderr, "Usage: quickcall peer <user-id>")
			os.Exit(1)
		}
		runPeer(args[1])

	case "relay":
		addr := ":8787"
		if len(args) >= 2 {
			addr = args[1]
		}
		runRelay(addr)

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		fmt.Fprintln(os.Stderr)
		showUsage()
		os.Exit(1)
	}
}

func runPeer(userID string) {
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *server != "" {
		cfg.Signaling.Server = *server
	}

	printPeerBanner(userID, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		cancel()
	}()

	app := NewApp(userID, *cfgPath, cfg)
	if err := app.Run(ctx); err != nil {
		log.Fatalf("Peer failed: %v", err)
	}
}

func runRelay(addr string) {
	relay := qsignal.NewRelay()
	mux := http.NewServeMux()
	mux.Handle("/ws", relay)

	srv := &http.Server{Addr: addr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()

	fmt.Printf("quickcall relay listening on %s (endpoint /ws)\n", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Relay failed: %v", err)
	}
	<-ctx.Done()
}

func printPeerBanner(userID string, cfg config.Config) {
	fmt.Println("──────────────────────────────────────────")
	fmt.Printf(" quickcall v%s\n", appVersion)
	fmt.Printf(" user:      %s\n", userID)
	fmt.Printf(" signaling: %s\n", cfg.Signaling.Server)
	fmt.Printf(" config:    %s\n", *cfgPath)
	fmt.Println("──────────────────────────────────────────")
	fmt.Println(" Type 'help' for commands.")
}

func showUsage() {
	fmt.Println(`quickcall - peer-to-peer audio/video calls

Usage:
  quickcall [flags] peer <user-id>     Run an interactive calling peer
  quickcall [flags] relay [addr]       Run a signaling relay (default :8787)

Flags:
  -config <path>   Config file (default quickcall.json)
  -server <url>    Signaling server URL, overrides the config
  -log <level>     Log level: debug, info, warn, error (default info)
  -version         Show version
  -h               Show help`)
}
