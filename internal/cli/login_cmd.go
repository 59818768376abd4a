package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gristmigrate/internal/secret"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the Grist API key in the system keychain",
		Long: `Read a Grist API key from stdin and store it in the system keychain, where
later commands find it when SECRET_GRIST_API_KEY is not set.

Example:
  gristmigrate login < grist-key.txt
  gristmigrate login --remove`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := opts.env.Secrets
			if remove {
				if err := store.Delete(secret.APIKeyName); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "API key removed")
				return nil
			}

			fmt.Fprint(cmd.ErrOrStderr(), "Grist API key: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			key := strings.TrimSpace(line)
			if key == "" {
				if err == nil {
					err = errors.New("empty key")
				}
				return WrapExitError(ExitCommandError, "read API key", err)
			}
			if err := store.Set(secret.APIKeyName, []byte(key)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key stored")
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "Delete the stored key instead")
	return cmd
}
