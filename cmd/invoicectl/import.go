package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/contacts"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/items"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import master data from CSV files",
	}
	cmd.PersistentFlags().Int64("company", 0, "Company id the rows belong to (required)")
	cmd.PersistentFlags().Int64("user", 0, "User id recorded as the actor")

	contactsCmd := &cobra.Command{
		Use:   "contacts <file.csv>",
		Short: "Import customers or vendors",
		Example: `  invoicectl import contacts --company 1 --kind customer customers.csv
  invoicectl import contacts --company 1 --kind vendor - < vendors.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawKind, _ := cmd.Flags().GetString("kind")
			kind, err := contacts.ParseKind(rawKind)
			if err != nil {
				return err
			}
			return runImport(cmd, opts, args[0], func(ctx context.Context, svcs importServices, r io.Reader) (any, error) {
				return svcs.contacts.Import(ctx, kind, r)
			})
		},
	}
	contactsCmd.Flags().String("kind", "customer", "customer or vendor")

	itemsCmd := &cobra.Command{
		Use:     "items <file.csv>",
		Short:   "Import catalog items",
		Example: `  invoicectl import items --company 1 items.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0], func(ctx context.Context, svcs importServices, r io.Reader) (any, error) {
				return svcs.items.Import(ctx, r)
			})
		},
	}

	cmd.AddCommand(contactsCmd, itemsCmd)
	return cmd
}

type importServices struct {
	contacts *contacts.Service
	items    *items.Service
}

type importFunc func(ctx context.Context, svcs importServices, r io.Reader) (any, error)

// identityFromFlags scopes a CLI import the same way a signed-in request is.
func identityFromFlags(cmd *cobra.Command) (shared.Identity, error) {
	company, _ := cmd.Flags().GetInt64("company")
	user, _ := cmd.Flags().GetInt64("user")
	if company <= 0 {
		return shared.Identity{}, errors.New("--company is required")
	}
	return shared.Identity{UserID: user, CompanyID: company}, nil
}

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}

func runImport(cmd *cobra.Command, opts *rootOptions, path string, fn importFunc) error {
	id, err := identityFromFlags(cmd)
	if err != nil {
		return err
	}
	in, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer in.Close()

	pool, err := opts.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer pool.Close()

	svcs := importServices{
		contacts: contacts.NewService(contacts.NewRepository(pool), opts.logger),
		items:    items.NewService(items.NewRepository(pool), opts.logger),
	}
	ctx := shared.ContextWithIdentity(cmd.Context(), id)
	result, err := fn(ctx, svcs, in)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	opts.logger.Info("import finished", slog.String("file", path), slog.Int64("company_id", id.CompanyID))
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
