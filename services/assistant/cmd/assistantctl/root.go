package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Uebook/Luna-sub002/pkg/logger"
	"github.com/Uebook/Luna-sub002/pkg/pagination"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/catalog"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/domain"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/repository/memory"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/service"
)

// maxShownResults caps the products printed at the end of a search.
const maxShownResults = 10

type rootOptions struct {
	catalogPath string
	logLevel    string
	logger      *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "assistantctl",
		Short:        "Talk to the shopping assistant from a terminal",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.logger = logger.NewWithFormat("assistantctl", opts.logLevel, logger.FormatText, cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVar(&opts.catalogPath, "catalog", "", "YAML catalog file (built-in categories when empty)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newChatCmd(opts), newCategoriesCmd(opts))
	return cmd
}

// loadCatalog reads --catalog. Unlike the server, a broken file is an error
// here rather than a silent fallback.
func (o *rootOptions) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if o.catalogPath == "" {
		return catalog.Static(), nil
	}
	return catalog.FileSource{Path: o.catalogPath}.Load(ctx)
}

type fixedCatalog struct{ c domain.Catalog }

func (f fixedCatalog) Current() domain.Catalog { return f.c }

func newChatCmd(opts *rootOptions) *cobra.Command {
	var flow string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: "Start an interactive conversation. Type a reply or a chip label and press enter.\n" +
			"The conversation ends at its final step, on end of input, or with /quit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := opts.loadCatalog(ctx)
			if err != nil {
				return err
			}

			svc := service.NewAssistantService(memory.NewSessionRepository(0), fixedCatalog{c: c}, time.Hour, opts.logger)
			return chat(ctx, svc, flow, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flow, "flow", string(domain.FlowProductSearch), "Conversation to run (product_search or support)")
	return cmd
}

func newCategoriesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List catalog categories and their sub-categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range c.Categories() {
				fmt.Fprintln(out, name)
				for _, sub := range c.Subcategories(name) {
					fmt.Fprintln(out, "  -", sub)
				}
			}
			return nil
		},
	}
}

// chat runs one session over line-oriented in and out.
func chat(ctx context.Context, svc *service.AssistantService, flow string, in io.Reader, out io.Writer) error {
	session, err := svc.StartSession(ctx, "", flow)
	if err != nil {
		return err
	}
	printMessages(out, session.Transcript)

	scanner := bufio.NewScanner(in)
	for !session.Done {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		res, err := svc.Reply(ctx, "", session.ID, text)
		if err != nil {
			if errors.Is(err, domain.ErrEmptyReply) {
				continue
			}
			return err
		}
		printMessages(out, res.Messages)
		session = res.Session
	}

	if session.Flow == domain.FlowProductSearch {
		page, err := svc.Results(ctx, "", session.ID, pagination.Params{Page: 1, PerPage: maxShownResults})
		if err != nil {
			return err
		}
		printProducts(out, page)
	}
	return nil
}

func printMessages(out io.Writer, msgs []domain.Message) {
	for _, m := range msgs {
		if m.Role != domain.RoleBot {
			continue
		}
		fmt.Fprintln(out, m.Text)
		if len(m.Chips) > 0 {
			fmt.Fprintf(out, "  [%s]\n", strings.Join(m.Chips, "] ["))
		}
	}
}

func printProducts(out io.Writer, page pagination.Result[domain.Product]) {
	for _, p := range page.Data {
		fmt.Fprintf(out, "  %s  %s  (%s)\n", p.Title, p.Price, p.Section)
	}
	if more := page.TotalCount - len(page.Data); more > 0 {
		fmt.Fprintf(out, "  ... and %d more\n", more)
	}
}
