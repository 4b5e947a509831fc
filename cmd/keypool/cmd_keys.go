package main

import (
	"bufio"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/getpup/keypool-orchestrator"
)

var keysFlags struct {
	owner    string
	provider string
	secret   string
	id       string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage an owner's credentials",
	Long: `Add and list credentials in the configured store.

Credentials are normally provisioned by the owner out-of-band. These commands
are meant for local use; the memory driver forgets everything on exit.`,
}

var keysAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a credential to an owner's pool",
	Long: `Add a credential to an owner's pool as Active.

The secret is read from --secret, or from the first line of stdin when the flag is omitted.`,
	Args: cobra.NoArgs,
	RunE: runKeysAdd,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's credentials and their health",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

func init() {
	for _, c := range []*cobra.Command{keysAddCmd, keysListCmd} {
		c.Flags().StringVar(&keysFlags.owner, "owner", "", "owner of the credential pool (required)")
		c.Flags().StringVar(&keysFlags.provider, "provider", "", "upstream provider (required)")
		_ = c.MarkFlagRequired("owner")
		_ = c.MarkFlagRequired("provider")
	}
	keysAddCmd.Flags().StringVar(&keysFlags.secret, "secret", "", "key material")
	keysAddCmd.Flags().StringVar(&keysFlags.id, "id", "", "credential ID (default: a new UUID)")

	keysCmd.AddCommand(keysAddCmd, keysListCmd)
}

func runKeysAdd(cmd *cobra.Command, _ []string) error {
	if err := app.requireProvider(keysFlags.provider); err != nil {
		return err
	}

	secret := keysFlags.secret
	if secret == "" {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read secret from stdin: %w", err)
		}
		secret = strings.TrimSpace(line)
	}
	if secret == "" {
		return fmt.Errorf("secret is required")
	}

	cred, err := app.Store.InsertCredential(cmd.Context(), keypool.Credential{
		ID:       keysFlags.id,
		OwnerID:  keysFlags.owner,
		Provider: keysFlags.provider,
		Secret:   secret,
		Status:   keypool.StatusActive,
	})
	if err != nil {
		return err
	}

	app.Logger.Info(cmd.Context(), "credential added",
		"credentialID", cred.ID, "ownerID", cred.OwnerID, "provider", cred.Provider)
	fmt.Fprintln(cmd.OutOrStdout(), cred.ID)
	return nil
}

func runKeysList(cmd *cobra.Command, _ []string) error {
	creds, err := app.Store.ListByOwnerAndProvider(cmd.Context(), keysFlags.owner, keysFlags.provider)
	if err != nil {
		return err
	}

	printCredentials(cmd, creds)
	return nil
}

func printCredentials(cmd *cobra.Command, creds []keypool.Credential) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSECRET\tSTATUS\tFAILURES\tLAST USED\tLAST FAILED")
	for _, c := range creds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			c.ID, maskSecret(c.Secret), c.Status, c.FailureCount, formatTime(c.LastUsed), formatTime(c.LastFailed))
	}
	_ = w.Flush()
}

// maskSecret keeps the last four characters of long secrets.
func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
