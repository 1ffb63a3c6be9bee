/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/voicetory/apiserver/config"
	"github.com/voicetory/apiserver/internal/mq"
	"github.com/voicetory/apiserver/types"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect inventory events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print inventory events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}

		broker, err := mq.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer broker.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		err = broker.Subscribe(ctx, cfg.InventoryEventsChannel, func(ctx context.Context, msg mq.Message) error {
			var event types.InventoryEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				// Undecodable payloads are acknowledged and skipped.
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping message %s: %v\n", msg.ID, err)
				return nil
			}
			fmt.Fprintf(out, "%s %-6s owner=%s product=%q quantity=%d remaining=%d\n",
				event.OccurredAt.Format("2006-01-02T15:04:05Z07:00"), event.Action, event.OwnerID,
				event.Product, event.Quantity, event.Remaining)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
