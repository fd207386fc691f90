package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/omnipilot/tokenvault/internal/app"
	"github.com/omnipilot/tokenvault/internal/tokenstore"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "operate on stored token records",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "seed or rotate the token record for an account",
				ArgsUsage: "<open_id>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "expires-in",
						Usage: "access token lifetime in seconds",
						Value: 86400,
					},
					&cli.StringFlag{
						Name:  "scope",
						Usage: "granted scopes, comma separated",
					},
				},
				Action: tokenSetAction,
			},
		},
	}
}

func tokenSetAction(ctx context.Context, cmd *cli.Command) error {
	openID := cmd.Args().First()
	if openID == "" {
		return fmt.Errorf("open_id argument is required")
	}

	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	accessToken, err := promptSecret("Access token: ")
	if err != nil {
		return fmt.Errorf("reading access token: %w", err)
	}
	if accessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	refreshToken, err := promptSecret("Refresh token (optional): ")
	if err != nil {
		return fmt.Errorf("reading refresh token: %w", err)
	}

	manager, err := app.NewManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create token manager: %w", err)
	}

	rec := &tokenstore.Record{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		OpenID:       openID,
		TokenType:    "Bearer",
		Scope:        cmd.String("scope"),
		ExpiresIn:    int64(cmd.Int("expires-in")),
	}

	saved, err := manager.Save(ctx, openID, rec)
	if err != nil {
		return fmt.Errorf("failed to save token record: %w", err)
	}

	fmt.Printf("Stored token for %s, expires %s\n", openID, time.Unix(saved.ExpiresAt, 0).Format(time.RFC3339))
	return nil
}

// promptSecret reads a value without echoing when stdin is a terminal, and
// falls back to a plain line read when input is piped.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, label)
		value, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(value)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
