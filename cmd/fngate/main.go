package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/osvaldoandrade/fngate/pkg/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func (u *ui) status(code int) string {
	s := fmt.Sprintf("%d %s", code, http.StatusText(code))
	switch {
	case code >= 200 && code < 300:
		return u.ok(s)
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusTooManyRequests:
		return u.warn(s)
	default:
		return u.err(s)
	}
}

type options struct {
	baseURL      string
	issuerDomain string
	jwksURL      string
	token        string
	timeout      time.Duration
}

type client struct {
	baseURL    string
	httpClient *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *client) call(method, function, token string, body []byte) (int, []byte, error) {
	req, err := http.NewRequest(method, c.baseURL+"/api/"+strings.TrimPrefix(function, "/"), bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

func main() {
	opts := &options{
		baseURL:      getenv("FNGATE_BASE_URL", "http://localhost:8080"),
		issuerDomain: getenv("AUTH_ISSUER_DOMAIN", config.DefaultIssuerDomain),
		jwksURL:      getenv("AUTH_JWKS_URL", ""),
		token:        getenv("FNGATE_TOKEN", ""),
		timeout:      10 * time.Second,
	}
	ui := newUI()

	root := &cobra.Command{
		Use:   "fngate",
		Short: "fngate CLI",
		Long:  "fngate CLI for inspecting issuer keys, verifying bearer tokens and calling protected functions.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", opts.baseURL, "Base URL of the function app")
	root.PersistentFlags().StringVar(&opts.issuerDomain, "issuer-domain", opts.issuerDomain, "Token issuer domain")
	root.PersistentFlags().StringVar(&opts.jwksURL, "jwks-url", opts.jwksURL, "Key set URL (overrides --issuer-domain)")
	root.PersistentFlags().StringVar(&opts.token, "token", opts.token, "Bearer token")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", opts.timeout, "HTTP timeout")

	root.AddCommand(
		keysCmd(opts, ui),
		verifyCmd(opts, ui),
		callCmd(opts, ui),
		probeCmd(opts, ui),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func helpTemplate(ui *ui) string {
	title := ui.title("fngate")
	return fmt.Sprintf(`%s - bearer token gate for serverless functions

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Examples:
  fngate keys
  fngate verify --require manage:secrets
  fngate call escalated-endpoint --method POST
  fngate probe test-endpoint -n 200 -c 8

`, title)
}
