package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"loom/internal/engine"
)

var flagPlayOffline bool

var (
	narrationColor  = color.New(color.FgCyan)
	atmosphereColor = color.New(color.FgHiBlack, color.Italic)
	speakerColor    = color.New(color.FgYellow, color.Bold)
	warningColor    = color.New(color.FgRed)
	statusColor     = color.New(color.FgGreen)
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the world interactively in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, genesis, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		client := buildClient(cfg, flagPlayOffline)
		eng, _, err := buildEngine(cfg, store, client)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if genesis.Title != "" {
			statusColor.Printf("=== %s ===\n\n", genesis.Title)
		}

		opening, err := eng.OpeningScene(ctx)
		if err != nil {
			return err
		}
		if opening != nil {
			printEntries(opening.Entries)
		}

		for {
			current := store.Current()
			prompt := promptui.Prompt{
				Label: fmt.Sprintf("[%s] you", current.ClockString()),
			}
			action, promptErr := prompt.Run()
			if promptErr != nil {
				// Interrupt or EOF ends the session.
				return nil
			}
			action = strings.TrimSpace(action)
			if action == "" {
				continue
			}
			if action == "/quit" || action == "/exit" {
				return nil
			}
			if action == "/status" {
				statusColor.Println(current.Summary())
				continue
			}

			result, turnErr := eng.RunTurn(ctx, engine.TurnRequest{Action: action, Turn: current.Turn})
			if turnErr != nil {
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil
				}
				warningColor.Printf("The world falters: %v\n", turnErr)
				continue
			}

			if result.State == engine.StateRejected {
				warningColor.Printf("Rejected: %s\n", result.Rejected)
				continue
			}

			printEntries(result.Entries)
			for _, warning := range result.Warnings {
				warningColor.Printf("(%s)\n", warning.Message)
			}
		}
	},
}

func printEntries(entries []engine.NarrationEntry) {
	for _, entry := range entries {
		switch entry.Kind {
		case "atmosphere":
			atmosphereColor.Println(entry.Text)
		case "dialogue":
			speakerColor.Printf("%s: ", entry.Speaker)
			fmt.Println(entry.Text)
		default:
			narrationColor.Println(entry.Text)
		}
	}
	fmt.Println()
}

func init() {
	playCmd.Flags().BoolVar(&flagPlayOffline, "offline", false, "use the scripted generation client")
}
