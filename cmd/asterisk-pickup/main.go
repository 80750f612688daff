package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/asterisk-pickup/internal/ami"
	"github.com/sweeney/asterisk-pickup/internal/channel"
	"github.com/sweeney/asterisk-pickup/internal/config"
	"github.com/sweeney/asterisk-pickup/internal/logging"
	"github.com/sweeney/asterisk-pickup/internal/pickup"
	"github.com/sweeney/asterisk-pickup/internal/publisher"
	"github.com/sweeney/asterisk-pickup/internal/tracker"
)

func main() {
	configPath := flag.String("config", "/etc/asterisk-pickup/asterisk-pickup.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var current atomic.Pointer[requestServer]
	pub, err := publisher.NewMQTTPublisher(publisher.MQTTOptions{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		QoS:      byte(cfg.MQTT.QoS),
		OnConnect: func() {
			srv := current.Load()
			if srv == nil {
				return
			}
			// Runs on paho's goroutine; resubscribe without blocking it.
			go func() {
				if err := srv.subscribe(ctx); err != nil {
					logger.Error("resubscribing", "error", err)
				}
			}()
		},
	})
	if err != nil {
		logger.Error("connecting to MQTT", "error", err)
		os.Exit(1)
	}
	defer pub.Close()

	logger.Info("connected to MQTT broker", "broker", cfg.MQTT.Broker)

	srv := newRequestServer(pub, cfg.MQTT, logger)
	current.Store(srv)
	if err := srv.subscribe(ctx); err != nil {
		logger.Error("subscribing to pickup requests", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, srv, logger); err != nil && ctx.Err() == nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, srv *requestServer, logger *slog.Logger) error {
	for {
		err := runSession(ctx, cfg, srv, logger)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Warn("AMI session error, reconnecting in 5s", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// runSession holds one AMI connection. Channels are mirrored into a fresh
// registry for the life of the connection; pickup requests are served from
// it once login succeeds.
func runSession(ctx context.Context, cfg *config.Config, srv *requestServer, logger *slog.Logger) error {
	addr := cfg.AMI.Addr()
	logger.Info("connecting to AMI", "addr", addr)

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial AMI: %w", err)
	}
	defer conn.Close()

	reg := channel.NewRegistry()
	client := ami.NewClient(conn)
	tr := tracker.New(reg, tracker.WithLogger(logger))

	defer srv.attach(nil, nil)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		client.Close()
		conn.Close()
		return nil
	})

	events := newEventQueue()
	g.Go(func() error {
		events.run(gctx, tr.Process)
		return nil
	})

	g.Go(func() error {
		return readEvents(conn, client, events, logger)
	})

	g.Go(func() error {
		loginCtx, cancel := context.WithTimeout(gctx, cfg.AMI.ActionTimeout)
		defer cancel()
		if _, err := client.Send(loginCtx, ami.Login(cfg.AMI.Username, cfg.AMI.Secret)); err != nil {
			return fmt.Errorf("AMI login: %w", err)
		}

		eng := &amiEngine{
			client:  client,
			local:   channel.NewLocal(reg),
			timeout: cfg.AMI.ActionTimeout,
		}
		srv.attach(reg, pickup.NewDriver(reg, eng, pickup.WithLogger(logger)))
		logger.Info("AMI authenticated, processing events")
		return nil
	})

	return g.Wait()
}

// readEvents feeds responses to the action client and queues everything
// else for the tracker until the connection ends. The queue is closed on
// return.
func readEvents(conn net.Conn, client *ami.Client, events *eventQueue, logger *slog.Logger) error {
	defer events.close()
	reader := bufio.NewReader(conn)

	banner, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading AMI banner: %w", err)
	}
	logger.Info("AMI banner", "banner", strings.TrimSpace(banner))

	parser := ami.NewParser(reader)
	for {
		evt, ok := parser.Next()
		if !ok {
			if err := parser.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("reading AMI: %w", err)
			}
			return fmt.Errorf("AMI connection closed")
		}
		if client.Deliver(evt) {
			continue
		}
		events.push(evt)
	}
}
