package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"casinogw/internal/gamestate"
	"casinogw/internal/proto"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "wiredecode",
		Short:        "Decode ledger wire messages to JSON",
		Long:         "wiredecode decodes hex-encoded ledger updates, submissions, stream filters and game state blobs and prints them as JSON.",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		newUpdateCmd(),
		newSubmissionCmd(),
		newFilterCmd(),
		newStateCmd(),
	)
	return rootCmd
}

// readHex takes the first argument, or stdin when it is absent or "-".
func readHex(cmd *cobra.Command, args []string) ([]byte, error) {
	var raw string
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 2*proto.MaxUpdateSize+2))
		if err != nil {
			return nil, err
		}
		raw = string(b)
	} else {
		raw = args[0]
	}
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newUpdateCmd() *cobra.Command {
	var envelope bool
	cmd := &cobra.Command{
		Use:   "update [hex]",
		Short: "Decode an updates stream message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readHex(cmd, args)
			if err != nil {
				return err
			}
			if envelope {
				env, err := proto.DecodeEnvelope(b)
				if err != nil {
					return err
				}
				b = env.Payload
			}
			u, err := proto.DecodeUpdate(b)
			if err != nil {
				return err
			}
			return printJSON(cmd, updateView(u))
		},
	}
	cmd.Flags().BoolVar(&envelope, "envelope", false, "input carries a versioned envelope header")
	return cmd
}

func newSubmissionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submission [hex]",
		Short: "Decode a submit request body",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readHex(cmd, args)
			if err != nil {
				return err
			}
			txs, err := proto.DecodeSubmission(b)
			if err != nil {
				return err
			}
			out := make([]txView, 0, len(txs))
			for _, tx := range txs {
				out = append(out, newTxView(tx))
			}
			return printJSON(cmd, out)
		},
	}
}

func newFilterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filter [hex]",
		Short: "Decode an updates subscription filter",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readHex(cmd, args)
			if err != nil {
				return err
			}
			f, err := proto.DecodeFilter(b)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"filter": f.String(), "hex": f.Hex()})
		},
	}
}

func newStateCmd() *cobra.Command {
	var game string
	cmd := &cobra.Command{
		Use:   "state [hex]",
		Short: "Decode a game state blob",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gt, ok := gamestate.ParseGameType(game)
			if !ok {
				return fmt.Errorf("unknown game %q", game)
			}
			b, err := readHex(cmd, args)
			if err != nil {
				return err
			}
			st, ok := gamestate.Parse(gt, b)
			if !ok {
				return fmt.Errorf("blob does not match a known %s layout", gt)
			}
			return printJSON(cmd, st)
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "game type name, e.g. blackjack")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}
