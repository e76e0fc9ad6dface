package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// resolveToken picks the token from args, then the flag/env value, then a
// hidden prompt.
func resolveToken(args []string, flagValue string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	if v := strings.TrimSpace(flagValue); v != "" {
		return strings.TrimPrefix(v, "Bearer "), nil
	}
	v, err := promptSecret("Bearer token")
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", errors.New("token is required (pass it, use --token or set FNGATE_TOKEN)")
	}
	return v, nil
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := termReadPassword()
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func termReadPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return nil, err
		}
		return []byte(strings.TrimSpace(line)), nil
	}
	return term.ReadPassword(fd)
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
