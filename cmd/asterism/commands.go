package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/client"
)

type exercise struct {
	endpoint *client.Endpoint
	settings *client.Settings
	dir      string
}

// loadExercise resolves the exercise URL from --url or asterism.env.
func loadExercise() (*exercise, error) {
	dir, err := filepath.Abs(flagDir)
	if err != nil {
		return nil, err
	}
	settings, settingsErr := client.LoadSettings(dir)
	raw := flagURL
	if raw == "" {
		if settingsErr != nil {
			return nil, fmt.Errorf("no --url given and %w", settingsErr)
		}
		raw = settings.URL
	}
	if settings == nil {
		settings = &client.Settings{URL: raw}
	}
	endpoint, err := client.ParseEndpoint(raw)
	if err != nil {
		return nil, err
	}
	return &exercise{endpoint: endpoint, settings: settings, dir: dir}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func link(ctx context.Context, c *client.Client) (string, error) {
	fmt.Println("* Open this page in a browser and log in to link this client:")
	token, err := c.Link(ctx, client.NewTicket(), func(startURL string) {
		fmt.Printf("*   %s\n", startURL)
	})
	if err != nil {
		return "", err
	}
	fmt.Printf("* Hello, %s!\n", client.Username(token))
	return token, nil
}

func linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Link this client to your account and print the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := loadExercise()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			logger := newLogger()
			defer logger.Sync() //nolint:errcheck
			token, err := link(ctx, client.New(ex.endpoint, nil, logger))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

func pushCmd() *cobra.Command {
	var duration time.Duration
	var token string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push every saved version of marked files",
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := loadExercise()
			if err != nil {
				return err
			}
			markers, err := client.ScanDir(ex.dir, ex.endpoint.String(), ex.settings.Extensions())
			if err != nil {
				return err
			}
			if len(markers) == 0 {
				return errors.New("no marked files found")
			}
			fmt.Printf("*** Asterism *** press ctrl-c to stop\n* Found %d marked file(s)\n", len(markers))

			ctx, cancel := signalContext()
			defer cancel()
			logger := newLogger()
			defer logger.Sync() //nolint:errcheck

			c := client.New(ex.endpoint, nil, logger)
			if token == "" {
				if token, err = link(ctx, c); err != nil {
					return err
				}
			}

			pusher := client.NewPusher(c, token, ex.endpoint.String(), markers, client.PushOptions{
				Logger: logger,
				OnPush: func(name string) { fmt.Printf("* Sent %s\n", name) },
			})
			runCtx, stop := context.WithTimeout(ctx, duration)
			defer stop()
			if err := pusher.Run(runCtx); err != nil {
				return err
			}
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				fmt.Printf("*** Stopping after %s, goodbye!\n", duration)
				return nil
			}
			fmt.Println("*** Goodbye!")
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "for", client.DefaultDuration, "stop pushing after this long")
	cmd.Flags().StringVar(&token, "token", "", "reuse a token printed by 'asterism link'")
	return cmd
}

func pullCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Restore your latest pushed version of marked files",
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := loadExercise()
			if err != nil {
				return err
			}
			markers, err := client.ScanDir(ex.dir, ex.endpoint.String(), ex.settings.Extensions())
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			logger := newLogger()
			defer logger.Sync() //nolint:errcheck

			c := client.New(ex.endpoint, nil, logger)
			if token == "" {
				if token, err = link(ctx, c); err != nil {
					return err
				}
			}
			for _, m := range markers {
				if !m.Mode.Pulls() {
					continue
				}
				content, err := c.Pull(ctx, m.Name, token)
				if errors.Is(err, client.ErrNotPushed) {
					fmt.Printf("* %s: nothing on the server yet\n", m.Name)
					continue
				}
				if err != nil {
					return fmt.Errorf("pull %s: %w", m.Name, err)
				}
				if err := os.WriteFile(m.Path, []byte(content), 0o644); err != nil {
					return err
				}
				fmt.Printf("* Restored %s\n", m.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "reuse a token printed by 'asterism link'")
	return cmd
}

func watchCmd() *cobra.Command {
	var cookieName, session string
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Follow students' edits of one file (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := loadExercise()
			if err != nil {
				return err
			}
			if session == "" {
				session = os.Getenv("ASTERISM_SESSION")
			}
			if session == "" {
				return errors.New("a session cookie is required (--session or ASTERISM_SESSION)")
			}
			ctx, cancel := signalContext()
			defer cancel()
			logger := newLogger()
			defer logger.Sync() //nolint:errcheck

			err = client.View(ctx, ex.endpoint, args[0], client.ViewOptions{CookieName: cookieName, Session: session}, func(u client.Update) {
				label := "snapshot"
				if u.Live() {
					label = "change"
				}
				fmt.Printf("===== %s [%s] %s =====\n%s\n", u.Username, label, time.Now().Format("15:04:05"), u.Content)
			})
			if err != nil {
				logger.Debug("watch ended", zap.Error(err))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&cookieName, "cookie", "asterism", "session cookie name")
	cmd.Flags().StringVar(&session, "session", "", "session cookie value")
	return cmd
}
