package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mirkobrombin/go-latch/v1/idgen"
)

var (
	idCount int

	idCmd = &cobra.Command{
		Use:   "id",
		Short: "Generate unique identifiers",
		Args:  cobra.NoArgs,
		RunE:  runID,
	}

	decodeCmd = &cobra.Command{
		Use:               "decode [id]",
		Short:             "Split an identifier into its timestamp and sequence",
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE:              runDecode,
	}
)

func init() {
	idCmd.Flags().IntVarP(&idCount, "count", "n", 1, "number of identifiers to generate")
	idCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(idCmd)
}

func runID(cmd *cobra.Command, _ []string) error {
	for i := 0; i < idCount; i++ {
		id, err := latch.IDs.NextID(cmd.Context())
		if err != nil {
			return fmt.Errorf("next id: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[0], err)
	}
	ts, seq := idgen.Decode(id, idgen.DefaultEpoch)
	fmt.Fprintf(cmd.OutOrStdout(), "time=%s sequence=%d\n", ts.UTC().Format(time.RFC3339), seq)
	return nil
}
