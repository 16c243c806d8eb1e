package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/chatgrid/botgate/internal/app"
)

func main() {
	cmd := &cli.Command{
		Name:  "botgate",
		Usage: "Admission core for a multi-tenant chat-bot platform",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: ":8080",
				Usage: "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./botgate.sqlite",
				Sources: cli.EnvVars("BOTGATE_DB_PATH"),
				Usage:   "SQLite settings store path",
			},
			&cli.DurationFlag{
				Name:    "cache-ttl",
				Value:   5 * time.Minute,
				Sources: cli.EnvVars("BOTGATE_CACHE_TTL"),
				Usage:   "Config cache entry TTL",
			},
			&cli.IntFlag{
				Name:    "rate-limit",
				Value:   30,
				Sources: cli.EnvVars("BOTGATE_RATE_LIMIT"),
				Usage:   "Commands allowed per subject per window",
			},
			&cli.DurationFlag{
				Name:    "rate-limit-window",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("BOTGATE_RATE_LIMIT_WINDOW"),
				Usage:   "Rate limit refill window",
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Value:   5 * time.Minute,
				Sources: cli.EnvVars("BOTGATE_SWEEP_INTERVAL"),
				Usage:   "How often expired grants are swept from the store",
			},
			&cli.DurationFlag{
				Name:    "janitor-interval",
				Value:   5 * time.Minute,
				Sources: cli.EnvVars("BOTGATE_JANITOR_INTERVAL"),
				Usage:   "How often stale cache entries and idle buckets are evicted",
			},
			&cli.StringFlag{
				Name:    "admin-token",
				Sources: cli.EnvVars("BOTGATE_ADMIN_TOKEN"),
				Usage:   "Token guarding the admin endpoints (empty disables them)",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("BOTGATE_WEBHOOK_URL"),
				Usage:   "Audit notification webhook target URL",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("BOTGATE_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for audit webhooks",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := app.Config{
				Addr:              c.String("addr"),
				DBPath:            c.String("db-path"),
				CacheTTL:          c.Duration("cache-ttl"),
				RateLimitCapacity: int(c.Int("rate-limit")),
				RateLimitWindow:   c.Duration("rate-limit-window"),
				SweepInterval:     c.Duration("sweep-interval"),
				JanitorInterval:   c.Duration("janitor-interval"),
				AdminToken:        c.String("admin-token"),
				WebhookURL:        c.String("webhook-url"),
				WebhookSecret:     c.String("webhook-secret"),
			}

			server, closer, err := app.NewServer(ctx, cfg)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					log.Printf("close resources: %v", closeErr)
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				log.Printf("listening on %s", cfg.Addr)
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				log.Printf("received signal %s", sig)
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
