package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/terra-clan/bracket-engine/pkg/client"
)

func newClient(c *cli.Command) *client.Client {
	return client.NewClient(c.String("server"), c.String("api-key"))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func categoryFlag() cli.Flag {
	return &cli.StringFlag{Name: "category", Aliases: []string{"c"}, Required: true, Usage: "category id"}
}

func levelFlag() cli.Flag {
	return &cli.StringFlag{Name: "level", Aliases: []string{"l"}, Required: true, Usage: "level name"}
}

func drawCommand() *cli.Command {
	return &cli.Command{
		Name:  "draw",
		Usage: "Generate the first level of a category",
		Flags: []cli.Flag{
			categoryFlag(),
			&cli.BoolFlag{Name: "replace", Usage: "discard the existing bracket and all its scores"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			bracket, err := newClient(c).GenerateDraws(ctx, c.String("category"), c.Bool("replace"))
			if err != nil {
				return err
			}
			return printJSON(bracket)
		},
	}
}

func advanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "advance",
		Usage: "Generate the level that follows a completed level",
		Flags: []cli.Flag{categoryFlag(), levelFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			next, err := newClient(c).GenerateNextLevel(ctx, c.String("category"), c.String("level"))
			if err != nil {
				return err
			}
			if !next.Generated {
				fmt.Fprintf(os.Stderr, "level %s is not complete yet\n", c.String("level"))
				return nil
			}
			return printJSON(next.Units)
		},
	}
}

func bracketCommand() *cli.Command {
	return &cli.Command{
		Name:  "bracket",
		Usage: "Show every level of a category",
		Flags: []cli.Flag{categoryFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			bracket, err := newClient(c).GetBracket(ctx, c.String("category"))
			if err != nil {
				return err
			}
			return printJSON(bracket)
		},
	}
}

func scoreboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "scoreboard",
		Usage: "Show the scoreboard of one level",
		Flags: []cli.Flag{categoryFlag(), levelFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			rows, err := newClient(c).GetScoreboard(ctx, c.String("category"), c.String("level"))
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}
}
