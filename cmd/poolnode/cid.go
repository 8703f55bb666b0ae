package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mpesapool/internal/receipt"
)

func runCID(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read receipt: %w", err)
	}

	var r receipt.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("parse receipt: %w", err)
	}

	out := cmd.OutOrStdout()
	expected, _ := cmd.Flags().GetString("verify")
	if expected != "" {
		if err := receipt.Verify(expected, r); err != nil {
			return err
		}
		fmt.Fprintf(out, "ok %s\n", expected)
		return nil
	}

	c, err := receipt.CIDOfReceipt(r)
	if err != nil {
		return err
	}
	key, err := receipt.AnchorKey(c.String())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "cid: %s\nanchor: %s\n", c.String(), key)
	return nil
}
