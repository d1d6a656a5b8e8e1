package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCommand(logger func() *slog.Logger) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event broker and metrics endpoint until interrupted",
		Long: `Serve keeps the embedded NATS server alive for agents and watchers
and exposes Prometheus metrics on /metrics. Use it when running stagehand
as a coordinating service rather than one-shot commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				listen := addr
				if listen == "" {
					listen = app.Cfg.Metrics.Addr
				}
				if listen == "" {
					listen = ":9190"
				}

				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv := &http.Server{Addr: listen, Handler: mux}

				errCh := make(chan error, 1)
				go func() {
					app.Logger.Info("metrics endpoint listening", "addr", listen)
					if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						errCh <- err
					}
				}()

				fmt.Printf("Serving (metrics on %s, ctrl-c to stop)\n", listen)
				select {
				case <-ctx.Done():
				case err := <-errCh:
					return err
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Metrics listen address (default from config, else :9190)")
	return cmd
}
