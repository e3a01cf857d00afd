package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailrelay/internal/client"
	"github.com/teemow/gmailrelay/internal/credstore"
	"github.com/teemow/gmailrelay/internal/google"
	"github.com/teemow/gmailrelay/internal/logging"
)

// newRelayClient builds a client from configuration, storing credentials
// in the configured file or the user cache dir.
func newRelayClient(global *globalFlags) (*client.Client, error) {
	logger := global.logger()

	cfg, err := global.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	path := cfg.Client.CredentialsFile
	if path == "" {
		if path, err = credstore.DefaultPath(); err != nil {
			return nil, err
		}
	}
	logger.Debug("using credential store", "path", path)

	c, err := client.New(cfg.BackendURL(), cfg.RedirectURI(), credstore.NewFileStore(path),
		client.WithLogger(logging.NewSlogAdapter(logger)),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newAuthCmd(global *globalFlags) *cobra.Command {
	var clientID, clientSecret string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Store OAuth client credentials and print the consent URL",
		Long: `Store the OAuth client credentials of your Google Cloud project and
print the consent URL. Open it in a browser; after consenting, Google
redirects to <origin>/callback, which shows the authorization code. Pass
that code to "gmailrelay exchange".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newRelayClient(global)
			if err != nil {
				return err
			}

			authURL, err := c.BeginAuthorization(cmd.Context(), google.ClientCredentials{
				ClientID:     clientID,
				ClientSecret: clientSecret,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Redirect URI (register it in Google Cloud): %s\n\n", c.RedirectURI())
			fmt.Fprintln(out, "Open this URL to grant access:")
			fmt.Fprintln(out, authURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client ID")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret")
	_ = cmd.MarkFlagRequired("client-id")
	_ = cmd.MarkFlagRequired("client-secret")

	return cmd
}

func newExchangeCmd(global *globalFlags) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Exchange an authorization code for tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newRelayClient(global)
			if err != nil {
				return err
			}

			tokens, err := c.CompleteAuthorization(cmd.Context(), code)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Authorization complete.")
			if tokens.RefreshToken == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Note: Google issued no refresh token; run auth again when the access token expires.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code shown on the callback page")
	_ = cmd.MarkFlagRequired("code")

	return cmd
}

func newStatusCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the authorization state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newRelayClient(global)
			if err != nil {
				return err
			}
			expired, err := c.TokenExpired(time.Now())
			if err != nil {
				return err
			}
			if expired {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (access token expired)\n", c.State())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.State())
			return nil
		},
	}
}

func newLogoutCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials and tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newRelayClient(global)
			if err != nil {
				return err
			}
			if err := c.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
