package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/krau/konabatch/config"
	"github.com/krau/konabatch/onnx"
	"github.com/krau/konabatch/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve single-image tagging over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("host", "", "listen host")
	cmd.Flags().String("port", "", "listen port")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	c := config.C()
	if cmd.Flags().Changed("host") {
		c.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		c.Port, _ = cmd.Flags().GetString("port")
	}

	model, analyzer, err := loadTagger(ctx, c)
	if err != nil {
		return err
	}
	defer onnx.Destroy()
	defer model.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    c.Host + ":" + c.Port,
		Handler: server.New(model, analyzer, preprocessOptions(c), c.Token).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening on", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
