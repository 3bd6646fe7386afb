package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"modwarden/internal/analytics"
	"modwarden/internal/config"
	"modwarden/internal/storage"

	"github.com/disgoorg/snowflake/v2"
	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var (
	successSign = color.GreenString("✓")
	infoSign    = color.YellowString("i")
	errorSign   = color.RedString("x")
)

var ErrArgRequired = errors.New("exactly one argument required")

func main() {
	if err := run(); err != nil {
		log.Printf("%s Error: %v", errorSign, err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "modwardenctl",
		Usage: "Offline maintenance for the modwarden database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file (defaults to CONFIG_PATH or config.test.json)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply the schema migrations",
				Action: withStore(func(_ context.Context, _ *cli.Command, store *storage.Store, _ config.Config) error {
					if err := store.Migrate(); err != nil {
						return err
					}
					fmt.Printf("%s %s database is up to date\n", successSign, store.Driver())
					return nil
				}),
			},
			{
				Name:      "warnings",
				Usage:     "List the warnings recorded for a user",
				ArgsUsage: "USER_ID",
				Action: withStore(func(ctx context.Context, c *cli.Command, store *storage.Store, _ config.Config) error {
					userID, err := userArg(c)
					if err != nil {
						return err
					}
					warns, err := store.ListWarns(ctx, userID)
					if err != nil {
						return err
					}
					if len(warns) == 0 {
						fmt.Printf("%s no warnings for %s\n", infoSign, snowflake.ID(userID))
					}
					for _, w := range warns {
						fmt.Printf("%s  %s  by %s  %s\n",
							color.CyanString(w.ID),
							time.Unix(w.Datestamp, 0).UTC().Format(time.DateTime),
							snowflake.ID(w.ModeratorID),
							w.Reason,
						)
					}

					flag, err := store.GetFlag(ctx, userID)
					if err != nil {
						return err
					}
					if flag != nil {
						fmt.Printf("%s flagged by %s on %s\n",
							color.RedString("🚩"),
							snowflake.ID(flag.ModeratorID),
							time.Unix(flag.Datestamp, 0).UTC().Format(time.DateOnly),
						)
					}
					return nil
				}),
			},
			{
				Name:      "delwarn",
				Usage:     "Delete a warning by id",
				ArgsUsage: "WARN_ID",
				Action: withStore(func(ctx context.Context, c *cli.Command, store *storage.Store, _ config.Config) error {
					if c.Args().Len() != 1 {
						return ErrArgRequired
					}
					warnID := c.Args().First()
					err := store.DelWarn(ctx, warnID)
					if errors.Is(err, storage.ErrNotFound) {
						fmt.Printf("%s no warning found with id %s\n", infoSign, warnID)
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Printf("%s %s deleted\n", successSign, warnID)
					return nil
				}),
			},
			{
				Name:      "flag",
				Usage:     "Flag a user as suspicious",
				ArgsUsage: "USER_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "moderator",
						Aliases:  []string{"m"},
						Usage:    "Moderator id recorded on the flag",
						Required: true,
					},
				},
				Action: withStore(func(ctx context.Context, c *cli.Command, store *storage.Store, cfg config.Config) error {
					userID, err := userArg(c)
					if err != nil {
						return err
					}
					moderatorID, err := snowflake.Parse(c.String("moderator"))
					if err != nil {
						return fmt.Errorf("invalid moderator id: %w", err)
					}
					serverID, err := snowflake.Parse(cfg.GuildID)
					if err != nil {
						return fmt.Errorf("invalid server id %q: %w", cfg.GuildID, err)
					}
					id, err := store.AddFlag(ctx, storage.NewFlag{
						ServerID:    int64(serverID),
						UserID:      userID,
						ModeratorID: int64(moderatorID),
						Datestamp:   time.Now().Unix(),
					})
					if err != nil {
						return err
					}
					fmt.Printf("%s %s flagged (%s)\n", successSign, snowflake.ID(userID), id)
					return nil
				}),
			},
			{
				Name:  "report",
				Usage: "Summarize moderator actions from the audit trail",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "days",
						Aliases: []string{"d"},
						Value:   7,
						Usage:   "How many days back to count",
					},
				},
				Action: withStore(func(ctx context.Context, c *cli.Command, store *storage.Store, cfg config.Config) error {
					since := time.Now().AddDate(0, 0, -int(c.Int("days")))
					report, err := analytics.New(store).Report(ctx, cfg.GuildID, since)
					if err != nil {
						return err
					}
					fmt.Printf("%s %d actions since %s\n", infoSign, report.Total, since.UTC().Format(time.DateOnly))

					actions := make([]string, 0, len(report.ByAction))
					for action := range report.ByAction {
						actions = append(actions, action)
					}
					sort.Strings(actions)
					for _, action := range actions {
						fmt.Printf("  %-8s %d\n", action, report.ByAction[action])
					}
					for _, row := range report.TopModerators(5) {
						fmt.Printf("  %s %d\n", color.CyanString(row.ModeratorID), row.Count)
					}
					return nil
				}),
			},
			{
				Name:  "prune",
				Usage: "Delete audit entries older than the retention period",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "retention-days",
						Usage: "Override retention_days from the configuration",
					},
				},
				Action: withStore(func(ctx context.Context, c *cli.Command, store *storage.Store, cfg config.Config) error {
					days := cfg.RetentionDays
					if c.IsSet("retention-days") {
						days = int(c.Int("retention-days"))
					}
					removed, err := store.CleanupAuditEntries(ctx, days)
					if err != nil {
						return err
					}
					fmt.Printf("%s removed %d audit entries older than %d days\n", successSign, removed, days)
					return nil
				}),
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

type storeAction func(ctx context.Context, c *cli.Command, store *storage.Store, cfg config.Config) error

// withStore opens the configured database for one subcommand. The Discord
// settings are not required offline.
func withStore(action storeAction) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		path := c.String("config")
		if path == "" {
			path = config.Path()
		}
		cfg, err := config.Read(path)
		if err != nil {
			return err
		}
		if err := cfg.ValidateDatabase(); err != nil {
			return err
		}

		logger, err := config.BuildLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()

		store, err := storage.New(cfg.DatabaseDriver, cfg.DSN(), logger)
		if err != nil {
			return fmt.Errorf("open %s database: %w", cfg.DatabaseDriver, err)
		}
		defer store.Close()

		logger.Debug("store opened", zap.String("driver", store.Driver()), zap.String("command", c.Name))
		return action(ctx, c, store, cfg)
	}
}

func userArg(c *cli.Command) (int64, error) {
	if c.Args().Len() != 1 {
		return 0, ErrArgRequired
	}
	id, err := snowflake.Parse(c.Args().First())
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", c.Args().First(), err)
	}
	return int64(id), nil
}
