package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/internal/services"
	"github.com/spf13/cobra"
)

func newCredentialCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage the shared AI provider key",
	}

	set := &cobra.Command{
		Use:   "set [api-key]",
		Short: "Store the provider key (reads DEEDOX_API_KEY when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv("DEEDOX_API_KEY")
			if len(args) == 1 {
				key = args[0]
			}
			if strings.TrimSpace(key) == "" {
				return errors.New("no key given: pass it as an argument or set DEEDOX_API_KEY")
			}
			creds, err := e.credentials()
			if err != nil {
				return err
			}
			if err := creds.Set(cmd.Context(), key, nil); err != nil {
				return err
			}
			return printPreview(cmd, creds)
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the masked provider key and where it comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := e.credentials()
			if err != nil {
				return err
			}
			return printPreview(cmd, creds)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored key; the configured fallback applies again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := e.credentials()
			if err != nil {
				return err
			}
			if _, err := creds.Clear(cmd.Context()); err != nil {
				return err
			}
			return printPreview(cmd, creds)
		},
	}

	cmd.AddCommand(set, show, clearCmd)
	return cmd
}

func printPreview(cmd *cobra.Command, creds *services.CredentialService) error {
	p, err := creds.Preview(cmd.Context())
	if err != nil {
		return err
	}
	if !p.IsSet {
		fmt.Fprintln(cmd.OutOrStdout(), "credential: not set")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "credential: %s (source: %s)\n", p.Masked, p.Source)
	return nil
}

func newModelsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the AI model allow-list",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every configured model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := services.NewModelConfigService(e.db, e.feed)
			items, _, err := svc.List(cmd.Context(), &services.ModelConfigListRequest{PageSize: 100})
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tENABLED\tKEY")
			for _, m := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", m.ID, m.Name, m.ProviderName(), m.Enabled, m.APIKeyMask)
			}
			return w.Flush()
		},
	}

	setEnabled := func(use string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <model-id>...",
			Short: strings.ToUpper(use[:1]) + use[1:] + " models for the chat proxy",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc := services.NewModelConfigService(e.db, e.feed)
				for _, id := range args {
					if _, err := svc.Update(cmd.Context(), id, &services.UpdateModelConfigRequest{Enabled: &enabled}); err != nil {
						if services.IsNotFound(err) {
							return fmt.Errorf("model %s does not exist", id)
						}
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%t\n", id, enabled)
				}
				return nil
			},
		}
	}

	var provider, name string
	add := &cobra.Command{
		Use:   "add <model-id>",
		Short: "Add a model to the allow-list (disabled)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = args[0]
			}
			svc := services.NewModelConfigService(e.db, e.feed)
			m, err := svc.Create(cmd.Context(), &services.CreateModelConfigRequest{ID: args[0], Name: name, Provider: provider})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", m.ID, m.ProviderName())
			return nil
		},
	}
	add.Flags().StringVar(&provider, "provider", models.ProviderOpenAI, "openai, anthropic, gemini or ollama")
	add.Flags().StringVar(&name, "name", "", "display name (defaults to the id)")

	cmd.AddCommand(list, add, setEnabled("enable", true), setEnabled("disable", false))
	return cmd
}

func newSettingsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write site settings",
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := services.NewSettingsStore(e.db, e.feed).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		},
	}

	var revision int64
	set := &cobra.Command{
		Use:   "set <key> <json-object>",
		Short: "Merge a JSON object into a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var partial map[string]interface{}
			if err := json.Unmarshal([]byte(args[1]), &partial); err != nil {
				return fmt.Errorf("value must be a JSON object: %w", err)
			}
			var expected *int64
			if cmd.Flags().Changed("revision") {
				expected = &revision
			}
			s, err := services.NewSettingsStore(e.db, e.feed).Merge(cmd.Context(), args[0], partial, expected, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		},
	}
	set.Flags().Int64Var(&revision, "revision", 0, "fail unless the stored revision matches")

	addItem := &cobra.Command{
		Use:   "add-item <key> <json-object>",
		Short: "Append an item to a list setting such as carousel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var item map[string]interface{}
			if err := json.Unmarshal([]byte(args[1]), &item); err != nil {
				return fmt.Errorf("item must be a JSON object: %w", err)
			}
			agg := services.NewSettingsAggregator(services.NewSettingsStore(e.db, e.feed))
			if err := agg.Load(cmd.Context()); err != nil {
				return err
			}
			added, err := agg.List(args[0]).Add(cmd.Context(), item)
			if err != nil {
				return err
			}
			return printJSON(cmd, added)
		},
	}

	cmd.AddCommand(get, set, addItem)
	return cmd
}

func newProbeCmd(e *env) *cobra.Command {
	var (
		prompt  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe <model-id>",
		Short: "Send one prompt through the chat proxy and print the raw reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := e.credentials()
			if err != nil {
				return err
			}
			proxy := services.NewChatProxy(services.NewModelConfigService(e.db, e.feed), creds, &e.cfg.AI, nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			c, err := proxy.Complete(ctx, services.Authenticated{Role: models.RoleAdmin}, &services.ChatRequest{
				ModelID: args[0],
				Prompt:  prompt,
			})
			if err != nil {
				status, msg := services.ProxyStatus(err)
				return fmt.Errorf("probe failed (%d): %s", status, msg)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(c.Body))
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "Reply with the single word: pong", "prompt to send")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "overall deadline")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
