package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/minoad/docuparse/internal/dispatch"
)

var showCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Print the stored record for a file as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		sm, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer sm.Close()

		reader, ok := sm.Reader()
		if !ok {
			return fmt.Errorf("no configured store can read records")
		}

		key := dispatch.CanonicalKey(args[0])
		doc, found, err := reader.Read(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no record stored for %s", key)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
