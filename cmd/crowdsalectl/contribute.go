package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/crowdsale-system/internal/client"
	"github.com/mmeshcher/crowdsale-system/internal/validation"
)

func newContributeCmd(opts *options) *cobra.Command {
	var beneficiary string

	cmd := &cobra.Command{
		Use:   "contribute <ether>",
		Short: "Contribute ether to the sale",
		Long: `Contribute ether to the sale on behalf of the key holder.

With --for the tokens are credited to another whitelisted address.

Examples:
  crowdsalectl contribute 1.5
  crowdsalectl contribute 0.25 --for 0xABC...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wei, err := validation.ParseEther(args[0])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[0], err)
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			var res *client.Contribution
			if beneficiary != "" {
				to, err := validation.ParseAddress(beneficiary)
				if err != nil {
					return fmt.Errorf("beneficiary: %w", err)
				}
				res, err = c.BuyTokens(ctx, to, wei)
				if err != nil {
					return err
				}
			} else {
				res, err = c.Contribute(ctx, wei)
				if err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), success("contribution accepted"))
			fmt.Fprintln(cmd.OutOrStdout(), keyValueBlock(res.Address.Hex(), [][2]string{
				{"Contributed (ETH)", formatEther(res.Wei)},
				{"Unreleased tokens", formatEther(res.Tokens)},
			}))
			return nil
		},
	}

	cmd.Flags().StringVar(&beneficiary, "for", "", "beneficiary address")
	return cmd
}

func newRefundCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "refund",
		Short: "Claim a refund from the vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			amount, err := c.ClaimRefund(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), success(fmt.Sprintf("refunded %s ETH", formatEther(amount.String()))))
			return nil
		},
	}
}
