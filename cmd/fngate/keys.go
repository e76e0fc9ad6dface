package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/osvaldoandrade/fngate/pkg/auth/jwks"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func keySetURL(opts *options) string {
	if opts.jwksURL != "" {
		return opts.jwksURL
	}
	return jwks.URLForDomain(opts.issuerDomain)
}

func keysCmd(opts *options, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the issuer's signing keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := keySetURL(opts)
			resolver, err := jwks.NewResolver(url, jwks.DefaultCacheTTL, opts.timeout, jwks.DefaultMinRefreshInterval)
			if err != nil {
				return err
			}

			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Fetching " + url + "..."
			spin.Start()
			keys, err := resolver.Keys(context.Background())
			spin.Stop()
			if err != nil {
				return err
			}

			sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
			fmt.Printf("%s %d signing key(s) at %s\n", ui.ok("[OK]"), len(keys), ui.dim(url))
			for _, k := range keys {
				fmt.Printf("  %-44s %-4s %s\n", ui.info(k.ID), k.Type, emptyOr(k.Algorithm, "-"))
			}
			return nil
		},
	}
}
