package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/evan-brass/hyperspace/internal/dispatch"
	"github.com/evan-brass/hyperspace/internal/envelope"
	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/evan-brass/hyperspace/internal/metrics"
	"github.com/evan-brass/hyperspace/internal/nodeconfig"
	"github.com/evan-brass/hyperspace/internal/route"
	"github.com/evan-brass/hyperspace/internal/util"
	"github.com/evan-brass/hyperspace/internal/wsconn"
)

const shutdownGrace = 5 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		metricsAddr string
		stunServers []string
		advertise   []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the signaling and relay listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := nodeconfig.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen.Address = listen
			}
			if len(stunServers) > 0 {
				cfg.STUN.Servers = stunServers
			}
			if len(advertise) > 0 {
				cfg.Advertise.Addresses = advertise
			}

			return runServe(cfg, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file (optional)")
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on, e.g. :8443 (overrides config file)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-listen", ":9090", "address to serve /metrics on")
	cmd.Flags().StringSliceVar(&stunServers, "stun", nil, "STUN server URIs (overrides config file)")
	cmd.Flags().StringSliceVar(&advertise, "advertise", nil, "addresses this node advertises to peers (overrides config file)")

	return cmd
}

func runServe(cfg *nodeconfig.Config, metricsAddr string) error {
	printBanner()

	ctx, stop := rootContext()
	defer stop()

	id, err := identity.Generate()
	if err != nil {
		return fmt.Errorf("generating identity: %w", err)
	}
	util.LogSuccess("node identity: %s", id.PeerId())

	d := dispatch.New(ctx, id, dispatch.Config{
		STUNServers: cfg.STUN.Servers,
		Addresses:   nodeconfig.NewInMemoryAddressBook(cfg.Advertise.Addresses),
		Neighbors:   nodeconfig.NewInMemoryNeighborBook(),
		AppData:     nodeconfig.LoggingAppDataSink{},
	})
	go d.Run(ctx)
	util.StartStatsReporter(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(ctx, d))

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())

	server := &http.Server{Addr: cfg.Listen.Address, Handler: mux}
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}

	errCh := make(chan error, 2)
	go func() {
		util.LogInfo("listening for signaling connections on %s", cfg.Listen.Address)
		errCh <- server.ListenAndServe()
	}()
	go func() {
		util.LogInfo("serving metrics on %s/metrics", metricsAddr)
		errCh <- metricsServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		util.LogInfo("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		_ = metricsServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}

// wsHandler upgrades inbound connections, sends the mandatory Addresses
// greeting, and wires each one into the dispatcher. The routing table
// entry for a connection is registered by the dispatcher itself, only
// once it has verified the signature on a frame — never from a frame's
// claimed, unverified Origin — so a forged claim can't redirect a
// victim's route to an impostor's connection.
func wsHandler(ctx context.Context, d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsconn.Accept(ctx, w, r)
		if err != nil {
			util.LogWarning("websocket upgrade failed: %v", err)
			return
		}
		util.LogDebug("[%s] websocket connection accepted", conn.LogID)

		greeting, err := d.Greeting()
		if err != nil {
			util.LogWarning("[%s] sealing greeting failed: %v", conn.LogID, err)
			_ = conn.Close()
			return
		}
		if err := conn.SendFull(greeting); err != nil {
			util.LogWarning("[%s] sending greeting failed: %v", conn.LogID, err)
			_ = conn.Close()
			return
		}

		metrics.RoutesOpened.WithLabelValues("ws").Inc()
		util.Stats.AddRouteOpened()

		go func() {
			conn.ReadPump(func(full *envelope.Full) {
				d.Submit(full, route.NewWS(conn))
			})
			for _, p := range d.Routes().Peers() {
				d.Routes().DeleteIfSender(p, conn)
			}
			metrics.RoutesClosed.WithLabelValues("ws").Inc()
			util.Stats.AddRouteClosed()
		}()
	}
}
