package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/crowdsale-system/internal/validation"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sale status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			st, err := c.Status(ctx)
			if err != nil {
				return err
			}

			pairs := [][2]string{
				{"Phase", string(st.Phase)},
				{"Active", strconv.FormatBool(st.Active)},
				{"Closed", strconv.FormatBool(st.Closed)},
				{"Rate", strconv.FormatUint(st.Rate, 10)},
				{"Raised (ETH)", formatEther(st.WeiRaised)},
				{"Private (ETH)", formatEther(st.PrivateContribution)},
			}
			if st.FundingGoal != "" {
				pairs = append(pairs,
					[2]string{"Goal (ETH)", formatEther(st.FundingGoal)},
					[2]string{"Goal reached", strconv.FormatBool(st.FundingGoalReached)},
				)
			}
			pairs = append(pairs,
				[2]string{"Custody", string(st.Custody)},
			)
			if st.VaultState != "" {
				pairs = append(pairs, [2]string{"Vault", string(st.VaultState)})
			}
			pairs = append(pairs,
				[2]string{"Token release", strconv.FormatBool(st.ReleaseEnabled)},
				[2]string{"Owner", st.Owner.Hex()},
				[2]string{"Wallet", st.Wallet.Hex()},
				[2]string{"Prefund start", st.PrefundStart.UTC().Format(time.RFC3339)},
				[2]string{"Start", st.StartTime.UTC().Format(time.RFC3339)},
				[2]string{"End", st.EndTime.UTC().Format(time.RFC3339)},
			)

			fmt.Fprintln(cmd.OutOrStdout(), keyValueBlock("Crowdsale", pairs))
			return nil
		},
	}
}

func newRateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rate",
		Short: "Show the current token rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			r, err := c.Rate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keyValueBlock("", [][2]string{
				{"Phase", string(r.Phase)},
				{"Tokens per ETH", strconv.FormatUint(r.Rate, 10)},
			}))
			return nil
		},
	}
}

func newGoalCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "goal",
		Short: "Show funding goal progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			g, err := c.Goal(ctx)
			if err != nil {
				return err
			}
			goal := "unlimited"
			if g.FundingGoal != "" {
				goal = formatEther(g.FundingGoal)
			}
			fmt.Fprintln(cmd.OutOrStdout(), keyValueBlock("", [][2]string{
				{"Raised (ETH)", formatEther(g.WeiRaised)},
				{"Goal (ETH)", goal},
				{"Reached", strconv.FormatBool(g.Reached)},
			}))
			return nil
		},
	}
}

func newWhitelistedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whitelisted <address>",
		Short: "Check whether an address is whitelisted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := validation.ParseAddress(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			ok, err := c.IsWhitelisted(ctx, a)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s whitelisted: %t\n", addr(a.Hex()), ok)
			return nil
		},
	}
}

func newContributionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "contribution <address>",
		Short: "Show contribution and unreleased tokens of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := validation.ParseAddress(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := c.Contribution(ctx, a)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keyValueBlock(res.Address.Hex(), [][2]string{
				{"Contributed (ETH)", formatEther(res.Wei)},
				{"Unreleased tokens", formatEther(res.Tokens)},
			}))
			return nil
		},
	}
}

func newPurchasesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purchases <address>",
		Short: "List token purchases made by or for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := validation.ParseAddress(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			list, err := c.Purchases(ctx, a)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "no purchases")
				return nil
			}
			for _, p := range list {
				fmt.Fprintf(out, "%s  %s -> %s  %s ETH  %s tokens\n",
					p.At.UTC().Format(time.RFC3339),
					addr(p.Purchaser.Hex()), addr(p.Beneficiary.Hex()),
					formatEther(p.Value), formatEther(p.Tokens))
			}
			return nil
		},
	}
}
