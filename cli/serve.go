package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ogsm-service/api"
	"ogsm-service/db"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the OGSM hierarchy HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate {
				conn, err := a.postgres()
				if err != nil {
					return err
				}
				if err := db.Migrate(ctx, conn, a.log); err != nil {
					return err
				}
			}

			if a.cfg.Log.Mode == "prod" || a.cfg.Log.Mode == "production" {
				gin.SetMode(gin.ReleaseMode)
			}
			router := api.NewRouter(api.RouterConfig{
				ComponentHandler: api.NewComponentHandler(a.log, a.components),
				Log:              a.log,
				CORSOrigins:      a.cfg.Server.CORSOrigins,
			})
			srv := &http.Server{
				Addr:              ":" + a.cfg.Server.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.log.Info("Starting server", "addr", srv.Addr, "storage", a.cfg.Storage.Driver, "cache", a.cfg.Cache.Driver)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				a.log.Info("Shutting down server")
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the database schema before serving")
	return cmd
}
