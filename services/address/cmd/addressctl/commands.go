package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Uebook/Luna-sub002/pkg/auth"
	"github.com/Uebook/Luna-sub002/services/address/internal/config"
	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
	"github.com/Uebook/Luna-sub002/services/address/internal/service"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the address book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd.Context(), func(svc *service.AddressService) error {
				book, err := svc.GetAddresses(cmd.Context(), opts.owner)
				return printBook(cmd, book, err)
			})
		},
	}
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	var (
		primary  bool
		jsonBody string
	)

	cmd := &cobra.Command{
		Use:     "add [key=value ...]",
		Short:   "Add an address",
		Example: "  addressctl add city=Pune line1='MG Road' --primary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args, jsonBody)
			if err != nil {
				return err
			}
			return opts.withService(cmd.Context(), func(svc *service.AddressService) error {
				book, err := svc.AddAddress(cmd.Context(), opts.owner, service.AddAddressInput{
					Fields:    fields,
					IsPrimary: primary,
				})
				return printBook(cmd, book, err)
			})
		},
	}

	cmd.Flags().BoolVar(&primary, "primary", false, "Make the new address primary")
	cmd.Flags().StringVar(&jsonBody, "json", "", "Fields as a JSON object, merged under key=value arguments")
	return cmd
}

func newUpdateCmd(opts *rootOptions) *cobra.Command {
	var (
		primary  bool
		jsonBody string
	)

	cmd := &cobra.Command{
		Use:   "update <id> [key=value ...]",
		Short: "Patch an address",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[1:], jsonBody)
			if err != nil {
				return err
			}
			input := service.UpdateAddressInput{Fields: fields}
			if cmd.Flags().Changed("primary") {
				input.IsPrimary = &primary
			}
			return opts.withService(cmd.Context(), func(svc *service.AddressService) error {
				book, err := svc.UpdateAddress(cmd.Context(), opts.owner, args[0], input)
				return printBook(cmd, book, err)
			})
		},
	}

	cmd.Flags().BoolVar(&primary, "primary", false, "Set or clear the primary flag")
	cmd.Flags().StringVar(&jsonBody, "json", "", "Fields as a JSON object, merged under key=value arguments")
	return cmd
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove an address",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd.Context(), func(svc *service.AddressService) error {
				book, err := svc.RemoveAddress(cmd.Context(), opts.owner, args[0])
				return printBook(cmd, book, err)
			})
		},
	}
}

func newPrimaryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "primary <id>",
		Short: "Make an address the primary one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd.Context(), func(svc *service.AddressService) error {
				book, err := svc.SetPrimary(cmd.Context(), opts.owner, args[0])
				return printBook(cmd, book, err)
			})
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Replace the address book with an exported address array",
		Long: `Replace the address book with the contents of a JSON file.

The file holds either a bare array of address records, as exported from the
mobile app, or a full address book object. Records without an id get one and
the primary flags are normalized so exactly one address is primary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFile(cmd, args[0])
			if err != nil {
				return err
			}
			imported, err := domain.DecodeBook(opts.owner, data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			return opts.withService(cmd.Context(), func(svc *service.AddressService) error {
				book, err := svc.ImportAddresses(cmd.Context(), opts.owner, imported.Addresses)
				return printBook(cmd, book, err)
			})
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for the address service",
		Long: `Mint a signed access token for --owner using JWT_SECRET and the rest of
the address service environment. Intended for local development.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.AccessTokenExpiry()
			}

			token, err := auth.NewJWTManager(cfg.JWTSecret, "address-service", ttl).GenerateAccessToken(opts.owner, email)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default JWT_ACCESS_TOKEN_EXPIRY)")
	return cmd
}

// parseFields builds address fields from a JSON object and key=value pairs.
// Pairs win over keys of the JSON object.
func parseFields(pairs []string, jsonBody string) (map[string]any, error) {
	fields := map[string]any{}

	if jsonBody != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(jsonBody)))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("--json must be a JSON object: %w", err)
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", pair)
		}
		fields[key] = value
	}

	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}
