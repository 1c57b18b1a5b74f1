package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/lrstanley/girc"
	"github.com/presbrey/ircgate/config"
	"github.com/presbrey/ircgate/ingress"
)

func main() {
	configSource := flag.String("config", os.Getenv("IRCGATE_CONFIG"), "Config file path or URL (yaml, toml or json)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configSource)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("Starting %s with the following configuration:", cfg.Server.Name)
	log.Printf("IRC bind address: %s", cfg.ListenAddress())
	if cfg.TLS.Enabled {
		log.Printf("TLS IRC bind address: %s", cfg.TLSListenAddress())
	}
	log.Printf("STARTTLS: %v", cfg.TLS.StartTLS)
	if cfg.Admin.Enabled {
		log.Printf("Admin bind address: %s", cfg.AdminListenAddress())
	}
	log.Printf("Max line length: %d", cfg.Limits.MaxLineLength)
	log.Printf("Debug logging: %v", cfg.Debug)

	server, err := ingress.New(cfg, ingress.HandlerFunc(logCommand))
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Println("Server is running. Press Ctrl+C to stop.")
	<-sigChan
	log.Println("Shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error stopping server: %v", err)
	}
}

// logCommand is the standalone handler: it answers PING so clients stay
// connected and logs every other validated command.
func logCommand(sess *ingress.Session, e *girc.Event) {
	switch e.Command {
	case girc.PING:
		sess.Send(&girc.Event{Command: girc.PONG, Params: e.Params})
	case girc.NICK:
		sess.SetNick(e.Params[0])
		log.Printf("[%s] %s", sess.RemoteAddr(), e.String())
	case girc.QUIT:
		sess.SendRaw("ERROR :Closing Link")
		sess.Close()
	default:
		log.Printf("[%s] %s", sess.RemoteAddr(), e.String())
	}
}
