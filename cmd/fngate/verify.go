package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/osvaldoandrade/fngate/pkg/auth"
	"github.com/osvaldoandrade/fngate/pkg/auth/jwks"

	"github.com/spf13/cobra"
)

func verifyCmd(opts *options, ui *ui) *cobra.Command {
	var (
		issuer     string
		audience   string
		algorithms []string
		require    []string
		clockSkew  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a bearer token against the issuer's keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := resolveToken(args, opts.token)
			if err != nil {
				return err
			}

			verifier, err := jwks.NewVerifier(auth.Config{
				IssuerDomain: opts.issuerDomain,
				JwksURL:      opts.jwksURL,
				Issuer:       issuer,
				Audience:     audience,
				Algorithms:   algorithms,
				ClockSkew:    clockSkew,
				HTTPTimeout:  opts.timeout,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
			defer cancel()
			decoded, err := verifier.Verify(ctx, token)
			if err != nil {
				fmt.Println(ui.err("[INVALID]"), err)
				return errors.New(auth.BodyInvalidToken)
			}

			fmt.Println(ui.ok("[VALID]"), "signature and claims verified")
			printJSON(ui, "header", decoded.Header)
			printJSON(ui, "payload", decoded.Payload)
			fmt.Printf("%s %s\n", ui.title("scopes:"), emptyOr(strings.Join(decoded.GrantedScopes().Sorted(), " "), ui.dim("<none>")))
			if exp := decoded.ExpiresAt(); !exp.IsZero() {
				fmt.Printf("%s %s (in %s)\n", ui.title("expires:"), exp.Format(time.RFC3339), time.Until(exp).Round(time.Second))
			}

			if len(require) > 0 {
				if err := auth.RequireScopes(require...).Authorize(decoded); err != nil {
					fmt.Println(ui.warn("[FORBIDDEN]"), "missing one of:", strings.Join(require, " "))
					return errors.New(auth.BodyForbidden)
				}
				fmt.Println(ui.ok("[ALLOWED]"), strings.Join(require, " "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&issuer, "issuer", "", "Expected iss claim")
	cmd.Flags().StringVar(&audience, "audience", "", "Expected aud claim")
	cmd.Flags().StringSliceVar(&algorithms, "alg", nil, "Allowed algorithms (default RS256)")
	cmd.Flags().StringSliceVar(&require, "require", nil, "Scopes the token must carry")
	cmd.Flags().DurationVar(&clockSkew, "clock-skew", 0, "Leeway for exp/nbf")
	return cmd
}

func printJSON(ui *ui, label string, v any) {
	b, err := json.MarshalIndent(v, "  ", "  ")
	if err != nil {
		fmt.Printf("%s %v\n", ui.title(label+":"), v)
		return
	}
	fmt.Printf("%s\n  %s\n", ui.title(label+":"), string(b))
}
