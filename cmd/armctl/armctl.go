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
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/armguard/internal/api"
	"github.com/banshee-data/armguard/internal/arm"
	"github.com/banshee-data/armguard/internal/armlink"
	"github.com/banshee-data/armguard/internal/config"
	"github.com/banshee-data/armguard/internal/db"
	"github.com/banshee-data/armguard/internal/pose"
	"github.com/banshee-data/armguard/internal/safety"
	"github.com/banshee-data/armguard/internal/serialmux"
	"github.com/banshee-data/armguard/internal/timeutil"
	"github.com/banshee-data/armguard/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run against an in-memory serial port instead of hardware")
	dryRun      = flag.Bool("dry-run", false, "Log arm commands instead of sending them to a serial port")
	listen      = flag.String("listen", ":8080", "Listen address")
	port        = flag.String("port", "", "Serial port to use (overrides config; ignored in dev mode)")
	baud        = flag.Int("baud", 0, "Serial baud rate (overrides config)")
	dbPath      = flag.String("db", "armguard.db", "Path to the journal database (empty disables the journal)")
	configPath  = flag.String("config", "", "Path to an arm config JSON file (defaults apply when empty)")
	sequence    = flag.String("sequence", "", "Run a predefined sequence after connecting")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// loadConfig returns the config at path, or an empty config when path is empty.
func loadConfig(path string) (*config.ArmConfig, error) {
	if path == "" {
		return config.EmptyArmConfig(), nil
	}
	return config.LoadArmConfig(path)
}

func timingFrom(cfg *config.ArmConfig) armlink.Timing {
	return armlink.Timing{
		Command: cfg.GetCommandDelay(),
		Mode:    cfg.GetModeDelay(),
		Axis:    cfg.GetAxisDelay(),
		Reset:   cfg.GetResetDelay(),
	}
}

// portSettings applies the -port and -baud overrides to the configured values.
func portSettings(cfg *config.ArmConfig, portFlag string, baudFlag int) (string, serialmux.PortOptions) {
	path := cfg.GetPort()
	if portFlag != "" {
		path = portFlag
	}
	opts := serialmux.PortOptions{BaudRate: cfg.GetBaudRate()}
	if baudFlag > 0 {
		opts.BaudRate = baudFlag
	}
	return path, opts
}

// devPortFactory serves an in-memory port whose reads block until close.
func devPortFactory() *serialmux.MemPortFactory {
	p := serialmux.NewMemPort()
	p.BlockReads = true
	return serialmux.NewMemPortFactory(p)
}

// linkOpener opens the arm link and starts journaling its replies. onOpen, if
// set, sees each link after it connects.
func linkOpener(factory serialmux.SerialPortFactory, path string, opts serialmux.PortOptions, timing armlink.Timing, rec serialmux.ReplyRecorder, onOpen func(*armlink.Link)) arm.Opener {
	return func(ctx context.Context) (arm.Link, error) {
		l, err := armlink.Open(ctx, factory, path, opts, timing, timeutil.RealClock{})
		if err != nil {
			return nil, err
		}
		go serialmux.RecordReplies(context.Background(), l.Mux(), rec)
		if onOpen != nil {
			onOpen(l)
		}
		return l, nil
	}
}

// dryRunOpener builds links over a DisabledSerialMux that only logs what
// would be written.
func dryRunOpener(timing armlink.Timing, onOpen func(*armlink.Link)) arm.Opener {
	return func(ctx context.Context) (arm.Link, error) {
		l := armlink.New(serialmux.NewDisabledSerialMux(), timing, timeutil.RealClock{})
		if onOpen != nil {
			onOpen(l)
		}
		return l, nil
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("armctl"))
		return
	}

	if flag.Arg(0) == "migrate" {
		if *dbPath == "" {
			log.Fatal("-db is required for migrate")
		}
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	validator, err := safety.NewValidator(cfg.GetSafetyConfig())
	if err != nil {
		log.Fatalf("invalid safety config: %v", err)
	}
	limits := cfg.GetEmergencyLimits()

	var database *db.DB
	var recorder arm.Recorder
	var replies serialmux.ReplyRecorder
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		recorder = database
		replies = database
	}

	path, opts := portSettings(cfg, *port, *baud)
	var factory serialmux.SerialPortFactory = serialmux.RealPortFactory{}
	if *devMode {
		path = "dev"
		factory = devPortFactory()
	}

	var linkMu sync.Mutex
	var firstLink *armlink.Link
	onOpen := func(l *armlink.Link) {
		linkMu.Lock()
		defer linkMu.Unlock()
		if firstLink == nil {
			firstLink = l
		}
	}
	var open arm.Opener
	if *dryRun {
		open = dryRunOpener(timingFrom(cfg), onOpen)
	} else {
		open = linkOpener(factory, path, opts, timingFrom(cfg), replies, onOpen)
	}

	ctrl := arm.NewController(open, arm.Config{
		Validator: validator,
		Limits:    &limits,
		Recorder:  recorder,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Connect(ctx); err != nil {
		log.Fatalf("failed to connect to arm: %v", err)
	}
	defer func() {
		if err := ctrl.Disconnect(); err != nil {
			log.Printf("disconnect error: %v", err)
		}
		log.Printf("disconnected from arm")
	}()

	if *sequence != "" {
		seq, err := pose.Sequence(*sequence)
		if err != nil {
			log.Printf("%v", err)
			return
		}
		n, err := ctrl.RunSequence(ctx, seq)
		if err != nil {
			log.Printf("sequence %s stopped after %d of %d poses: %v", *sequence, n, len(seq), err)
		} else {
			log.Printf("sequence %s complete", *sequence)
		}
	}

	var wg sync.WaitGroup

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(ctrl, database).ServeMux()

		linkMu.Lock()
		if firstLink != nil {
			firstLink.Mux().AttachAdminRoutes(mux)
		}
		linkMu.Unlock()
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		server := &http.Server{
			Addr:              *listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("serving API on %s", *listen)

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
