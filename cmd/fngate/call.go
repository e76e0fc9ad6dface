package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func callCmd(opts *options, ui *ui) *cobra.Command {
	var (
		method string
		data   string
	)
	cmd := &cobra.Command{
		Use:   "call <function>",
		Short: "Invoke a protected function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := resolveToken(nil, opts.token)
			if err != nil {
				return err
			}
			c := newClient(opts.baseURL, opts.timeout)

			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Calling " + args[0] + "..."
			spin.Start()
			status, resp, err := c.call(strings.ToUpper(method), args[0], token, []byte(data))
			spin.Stop()
			if err != nil {
				return err
			}
			fmt.Println(ui.status(status))
			fmt.Println(string(resp))
			if status >= 300 {
				return errors.New("call failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	return cmd
}
