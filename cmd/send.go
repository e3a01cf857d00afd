package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailrelay/internal/gmail"
)

func newSendCmd(global *globalFlags) *cobra.Command {
	var to, subject, html, htmlFile string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an HTML email as the authorized user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := messageBody(html, htmlFile, cmd.InOrStdin())
			if err != nil {
				return err
			}

			c, err := newRelayClient(global)
			if err != nil {
				return err
			}

			sent, err := c.Send(cmd.Context(), gmail.OutboundMessage{To: to, Subject: subject, HTMLBody: body})
			if err != nil {
				return err
			}

			if sent != nil && sent.Id != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Email sent (id %s).\n", sent.Id)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Email sent.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Recipient address")
	cmd.Flags().StringVar(&subject, "subject", "", "Subject line")
	cmd.Flags().StringVar(&html, "html", "", "HTML body")
	cmd.Flags().StringVar(&htmlFile, "html-file", "", "Read the HTML body from a file, - for stdin")
	cmd.MarkFlagsMutuallyExclusive("html", "html-file")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

// messageBody returns html, or the contents of path when set. A path of
// "-" reads stdin.
func messageBody(html, path string, stdin io.Reader) (string, error) {
	switch path {
	case "":
		return html, nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read body from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read body: %w", err)
		}
		return string(data), nil
	}
}
