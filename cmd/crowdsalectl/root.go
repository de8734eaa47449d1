package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/crowdsale-system/internal/client"
	"github.com/mmeshcher/crowdsale-system/internal/signature"
)

// Version переопределяется при сборке через -ldflags.
var Version = "0.1.0"

type options struct {
	server  string
	key     string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{
		server: "localhost:8080",
	}
	// CROWDSALE_SERVER и CROWDSALE_KEY задают значения флагов по умолчанию.
	if v := os.Getenv("CROWDSALE_SERVER"); v != "" {
		opts.server = v
	}
	opts.key = os.Getenv("CROWDSALE_KEY")

	root := &cobra.Command{
		Use:   "crowdsalectl",
		Short: "Crowdsale service client",
		Long: `crowdsalectl talks to the crowdsale service API.

Read commands need no key. Contributions, refunds and admin commands are
signed with the private key given by --key or CROWDSALE_KEY.

Amounts are given in ether and may have up to 18 decimals.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&opts.server, "server", "s", opts.server, "service address")
	root.PersistentFlags().StringVar(&opts.key, "key", opts.key, "hex private key for signed commands")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newStatusCmd(opts),
		newRateCmd(opts),
		newGoalCmd(opts),
		newWhitelistedCmd(opts),
		newContributionCmd(opts),
		newPurchasesCmd(opts),
		newContributeCmd(opts),
		newRefundCmd(opts),
		newAdminCmd(opts),
	)
	return root
}

// client создаёт клиент API. Ключ разбирается, только если он задан.
func (o *options) client() (*client.Client, error) {
	if o.key == "" {
		return client.New(o.server, nil), nil
	}
	key, err := signature.ParseKey(o.key)
	if err != nil {
		return nil, err
	}
	return client.New(o.server, key), nil
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}
