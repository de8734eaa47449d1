package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/crowdsale-system/internal/client"
	"github.com/mmeshcher/crowdsale-system/internal/validation"
)

func newAdminCmd(opts *options) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Owner-only sale management",
		Long: `Owner-only sale management. Every command is signed with --key;
the service rejects callers that are not the current owner.`,
	}

	whitelist := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage the whitelist",
	}
	whitelist.AddCommand(
		&cobra.Command{
			Use:   "add <address>...",
			Short: "Whitelist addresses in one batch",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				addrs, err := validation.ParseAddresses(args)
				if err != nil {
					return err
				}
				return opts.run(cmd, fmt.Sprintf("whitelisted %d address(es)", len(addrs)), func(ctx context.Context, c *client.Client) error {
					return c.AddToWhitelist(ctx, addrs)
				})
			},
		},
		&cobra.Command{
			Use:   "remove <address>",
			Short: "Remove an address from the whitelist",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := validation.ParseAddress(args[0])
				if err != nil {
					return err
				}
				return opts.run(cmd, "removed "+a.Hex(), func(ctx context.Context, c *client.Client) error {
					return c.RemoveFromWhitelist(ctx, a)
				})
			},
		},
	)

	release := &cobra.Command{
		Use:   "release <address>...",
		Short: "Release owed tokens to addresses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := validation.ParseAddresses(args)
			if err != nil {
				return err
			}
			return opts.runAmount(cmd, "released %s tokens", func(ctx context.Context, c *client.Client) (string, error) {
				v, err := c.ReleaseTokens(ctx, addrs)
				if err != nil {
					return "", err
				}
				return v.String(), nil
			})
		},
	}
	release.AddCommand(
		opts.simple("enable", "Allow token release", "token release enabled", (*client.Client).EnableTokenRelease),
		opts.simple("disable", "Forbid token release", "token release disabled", (*client.Client).DisableTokenRelease),
	)

	vault := &cobra.Command{
		Use:   "vault",
		Short: "Settle the vault or open refunds",
	}
	vault.AddCommand(
		opts.simple("settle", "Close the vault and forward funds to the wallet", "vault settled", (*client.Client).EnableSettlement),
		opts.simple("refunds", "Switch the vault to refunding", "refunds enabled", (*client.Client).EnableRefunds),
	)

	admin.AddCommand(
		whitelist,
		release,
		vault,
		opts.simple("start", "Start accepting contributions", "crowdsale started", (*client.Client).StartCrowdsale),
		opts.simple("stop", "Pause contributions", "crowdsale stopped", (*client.Client).StopCrowdsale),
		opts.simple("finalize", "Finalize the sale", "crowdsale finalized", (*client.Client).Finalize),
		&cobra.Command{
			Use:   "close",
			Short: "Return remaining token inventory to the owner",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.runAmount(cmd, "returned %s tokens", func(ctx context.Context, c *client.Client) (string, error) {
					v, err := c.CloseSale(ctx)
					if err != nil {
						return "", err
					}
					return v.String(), nil
				})
			},
		},
		&cobra.Command{
			Use:   "private <ether>",
			Short: "Set the private contribution total",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := parseNonNegativeEther(args[0])
				if err != nil {
					return err
				}
				return opts.run(cmd, "private contribution set to "+formatEther(amount.String())+" ETH", func(ctx context.Context, c *client.Client) error {
					return c.ChangePrivateContribution(ctx, amount)
				})
			},
		},
		&cobra.Command{
			Use:   "fund <tokens>",
			Short: "Move tokens from the key holder to the sale inventory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := validation.ParseEther(args[0])
				if err != nil {
					return fmt.Errorf("amount %q: %w", args[0], err)
				}
				return opts.run(cmd, "inventory funded with "+args[0]+" tokens", func(ctx context.Context, c *client.Client) error {
					return c.FundInventory(ctx, amount)
				})
			},
		},
		&cobra.Command{
			Use:   "transfer-ownership <address>",
			Short: "Hand ownership to another address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := validation.ParseAddress(args[0])
				if err != nil {
					return err
				}
				return opts.run(cmd, "ownership transferred to "+a.Hex(), func(ctx context.Context, c *client.Client) error {
					return c.TransferOwnership(ctx, a)
				})
			},
		},
	)
	return admin
}

// simple строит команду владельца без аргументов.
func (o *options) simple(use, short, done string, fn func(*client.Client, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, done, func(ctx context.Context, c *client.Client) error {
				return fn(c, ctx)
			})
		},
	}
}

func (o *options) run(cmd *cobra.Command, done string, fn func(context.Context, *client.Client) error) error {
	c, err := o.client()
	if err != nil {
		return err
	}
	ctx, cancel := o.context(cmd)
	defer cancel()

	if err := fn(ctx, c); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), success(done))
	return nil
}

func (o *options) runAmount(cmd *cobra.Command, format string, fn func(context.Context, *client.Client) (string, error)) error {
	c, err := o.client()
	if err != nil {
		return err
	}
	ctx, cancel := o.context(cmd)
	defer cancel()

	wei, err := fn(ctx, c)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), success(fmt.Sprintf(format, formatEther(wei))))
	return nil
}
