package cmd

import (
	"fmt"
	"io"
	"log"

	"github.com/acc2soldier2-cmd/Solar/solar"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Prepare the attendance table and check that it can be read",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Opening %s attendance store\n", cfg.Attendance.Store)
		store, err := solar.OpenStore(ctx, cfg)
		if err != nil {
			log.Fatalf("Error opening attendance store: %v", err)
		}
		if closer, ok := store.(io.Closer); ok {
			defer func() {
				_ = closer.Close()
			}()
		}

		if initializer, ok := store.(solar.TableInitializer); ok {
			if err = initializer.InitTable(ctx); err != nil {
				log.Fatalf("Error initializing attendance table: %v", err)
			}
		}

		rows, err := store.ReadAllRows(ctx)
		if err != nil {
			log.Fatalf("Error reading attendance table: %v", err)
		}
		fmt.Fprintf(out, "Attendance table has %d rows (including the header)\n", len(rows))

		fmt.Fprintln(
			out,
			"Initialization complete. You can now start the bot with the 'run' subcommand.",
		)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
