package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ankittk/taskwatch/pkg/models"
	"github.com/spf13/cobra"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			s, err := c.Settings(cmd.Context())
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), *s)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "interval <secs>",
		Short: "Set the capture interval (10-300 seconds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secs, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("interval must be a whole number of seconds: %w", err)
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			s, err := c.UpdateCaptureInterval(cmd.Context(), secs)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Capture interval set to %ds\n", s.CaptureIntervalSecs)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "notifications <on|off>",
		Short:     "Turn task notifications on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[0]) {
			case "on", "true", "yes":
				enabled = true
			case "off", "false", "no":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			s, err := c.ToggleNotifications(cmd.Context(), enabled)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Notifications %s\n", onOff(s.NotificationsEnabled))
			return nil
		},
	})
	cmd.AddCommand(newProviderCmd())
	return cmd
}

func newProviderCmd() *cobra.Command {
	var (
		provider string
		model    string
		endpoint string
		enabled  bool
	)
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Show or change the reasoning provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			cur, err := c.ProviderConfig(cmd.Context())
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			if fl.Changed("provider") || fl.Changed("model") || fl.Changed("endpoint") || fl.Changed("enabled") {
				next := *cur
				if fl.Changed("provider") {
					next.Provider = provider
				}
				if fl.Changed("model") {
					next.Model = model
				}
				if fl.Changed("endpoint") {
					next.Endpoint = endpoint
				}
				if fl.Changed("enabled") {
					next.Enabled = enabled
				}
				if cur, err = c.SetProviderConfig(cmd.Context(), next); err != nil {
					return err
				}
			}
			printProvider(cmd.OutOrStdout(), *cur)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "anthropic, openai, ollama, claude_cli, custom or stub")
	cmd.Flags().StringVar(&model, "model", "", "Model name (empty = provider default)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "API endpoint override")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Enable task detection")

	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check that the configured provider is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			h, err := c.ProviderHealth(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if h.Healthy {
				_, _ = fmt.Fprintf(out, "%s: %s\n", h.Provider, green("healthy"))
			} else {
				_, _ = fmt.Fprintf(out, "%s: %s %s\n", h.Provider, red("unhealthy"), h.Error)
			}
			_, _ = fmt.Fprintf(out, "API key stored: %s\n", onOff(h.HasAPIKey))
			if len(h.CLITools) > 0 {
				_, _ = fmt.Fprintf(out, "CLI tools: %s\n", strings.Join(h.CLITools, ", "))
			}
			if !h.Healthy {
				return errors.New("provider health check failed")
			}
			return nil
		},
	})
	return cmd
}

func printProvider(w io.Writer, p models.ProviderConfig) {
	_, _ = fmt.Fprintf(w, "Provider: %s (%s)\n", bold(p.Provider), onOff(p.Enabled))
	if p.Model != "" {
		_, _ = fmt.Fprintf(w, "Model:    %s\n", p.Model)
	}
	if p.Endpoint != "" {
		_, _ = fmt.Fprintf(w, "Endpoint: %s\n", p.Endpoint)
	}
}

func printSettings(w io.Writer, s models.Settings) {
	_, _ = fmt.Fprintf(w, "Capture interval:  %ds\n", s.CaptureIntervalSecs)
	_, _ = fmt.Fprintf(w, "Priority decay:    %g per active hour\n", s.PriorityDecayRate)
	_, _ = fmt.Fprintf(w, "Notifications:     %s\n", onOff(s.NotificationsEnabled))
	_, _ = fmt.Fprintf(w, "Capture:           %s %s (timeout %ds)\n", s.Capture.Mode, s.Capture.Command, s.Capture.TimeoutSecs)
	_, _ = fmt.Fprintf(w, "Analysis timeout:  %ds\n", s.AnalysisTimeoutSecs)
	_, _ = fmt.Fprintf(w, "Context retention: %dh\n", s.ContextRetentionHours)
	printProvider(w, s.LLM)
}

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage reasoning provider API keys",
	}
	var value string
	set := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key (read from --value or the first line of stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := value
			if key == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				key = strings.TrimSpace(line)
			}
			if key == "" {
				return errors.New("api key is empty")
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			st, err := c.SetCredential(cmd.Context(), args[0], key)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored API key for %s\n", st.Provider)
			return nil
		},
	}
	set.Flags().StringVar(&value, "value", "", "API key value")
	cmd.AddCommand(set)
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <provider>",
		Short: "Remove a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			if _, err := c.DeleteCredential(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted API key for %s\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "has <provider>",
		Short: "Report whether an API key is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			st, err := c.Credential(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			need := ""
			if !st.RequiresKey {
				need = dim(" (not required)")
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s%s\n", st.Provider, onOff(st.HasAPIKey), need)
			return nil
		},
	})
	return cmd
}
