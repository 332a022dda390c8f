package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/goliatone/go-metaboxes/internal/app"
	"github.com/goliatone/go-metaboxes/internal/prompt"
	"github.com/goliatone/go-metaboxes/pkg/config"
	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

func open(cmd *cli.Command) (*app.App, error) {
	configPath := cmd.String("config")

	cfg := config.NewDefault()
	if err := config.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return app.New(app.WithConfig(cfg))
}

func entityID(cmd *cli.Command) (int64, error) {
	raw := cmd.String("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid entity id %q", raw)
	}
	return id, nil
}

// withEntity opens the application, parses --id and runs fn.
func withEntity(fn func(ctx context.Context, a *app.App, cmd *cli.Command, id int64) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id, err := entityID(cmd)
		if err != nil {
			return err
		}
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, cmd, id)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Serve(ctx); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func idFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "id",
		Usage:    "Entity id",
		Required: true,
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "metaboxctl",
		Usage: "Render, fill and serve declarative metaboxes backed by SQLite",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTML edit screen",
				Action: serve,
			},
			{
				Name:  "entity",
				Usage: "Create or update an entity record",
				Flags: []cli.Flag{
					idFlag(),
					&cli.StringFlag{Name: "type", Usage: "Entity type", Value: "post"},
				},
				Action: withEntity(func(ctx context.Context, a *app.App, cmd *cli.Command, id int64) error {
					return a.PutEntity(ctx, metabox.Entity{ID: id, Type: cmd.String("type")})
				}),
			},
			{
				Name:  "render",
				Usage: "Print the metabox markup for an entity",
				Flags: []cli.Flag{idFlag()},
				Action: withEntity(func(ctx context.Context, a *app.App, _ *cli.Command, id int64) error {
					return a.Render(ctx, os.Stdout, id)
				}),
			},
			{
				Name:  "fill",
				Usage: "Prompt for metabox values and save them",
				Flags: []cli.Flag{
					idFlag(),
					&cli.StringFlag{Name: "metabox", Usage: "Only fill the metabox with this id"},
				},
				Action: withEntity(func(ctx context.Context, a *app.App, cmd *cli.Command, id int64) error {
					return a.Fill(ctx, prompt.NewSurveyDriver(), id, cmd.String("metabox"))
				}),
			},
			{
				Name:  "show",
				Usage: "Print the stored values of an entity",
				Flags: []cli.Flag{idFlag()},
				Action: withEntity(func(ctx context.Context, a *app.App, _ *cli.Command, id int64) error {
					return a.Show(ctx, os.Stdout, id)
				}),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
