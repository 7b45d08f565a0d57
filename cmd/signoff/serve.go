package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"signoff/internal/app"
	"signoff/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the notification scheduler and webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				addr := firstNonEmpty(viper.GetString("addr"), a.Config.Server.Addr, "127.0.0.1:8080")
				basePath := firstNonEmpty(viper.GetString("base-path"), a.Config.Server.BasePath, "/v0")
				secret := firstNonEmpty(viper.GetString("jwt-secret"), a.Config.Server.JWTSecret)
				if secret == "" {
					var err error
					if secret, err = randomSecret(); err != nil {
						return err
					}
					a.Log.Warn("no jwt secret configured; tokens will not survive a restart")
				}
				ttl, err := a.Config.TokenTTL()
				if err != nil {
					return err
				}
				sched, err := a.Scheduler()
				if err != nil {
					return err
				}

				handler, err := server.New(server.Config{
					Engine:    a.Engine,
					Generator: a.Generator(),
					BasePath:  basePath,
					Log:       a.Log,
					Auth: server.AuthConfig{
						JWTSecret:              secret,
						TokenTTL:               ttl,
						AllowLegacyActorHeader: a.Config.Server.AllowActorHeader,
					},
				})
				if err != nil {
					return err
				}

				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				var wg sync.WaitGroup
				wg.Add(2)
				go func() {
					defer wg.Done()
					sched.Run(ctx)
				}()
				go func() {
					defer wg.Done()
					server.RunWebhooks(ctx, a.Engine.Activity, a.Config.Webhooks, a.Log)
				}()

				srv := &http.Server{
					Addr:              addr,
					Handler:           handler,
					ReadHeaderTimeout: 10 * time.Second,
				}
				errCh := make(chan error, 1)
				go func() {
					a.Log.WithField("addr", addr).WithField("base_path", basePath).Info("signoff api listening")
					errCh <- srv.ListenAndServe()
				}()

				select {
				case err = <-errCh:
				case <-ctx.Done():
					shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
					err = srv.Shutdown(shutdownCtx)
					stop()
				}
				cancel()
				wg.Wait()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().String("base-path", "", "API base path (defaults to server.base_path)")
	cmd.Flags().String("jwt-secret", "", "HMAC secret for bearer tokens (or SIGNOFF_JWT_SECRET)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("base-path", cmd.Flags().Lookup("base-path"))
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
