package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/minios-linux/lokat/settings"
	"github.com/minios-linux/lokat/translate"
)

// allProviders is the ordered list of providers for menus and completion.
var allProviders = []struct {
	id      string
	name    string
	desc    string
	helpURL string
}{
	{translate.ProviderOpenAI, "OpenAI", "API key", "https://platform.openai.com/api-keys"},
	{translate.ProviderAnthropic, "Anthropic", "API key", "https://console.anthropic.com/settings/keys"},
	{translate.ProviderGoogle, "Google AI Studio", "Gemini API key, free tier available", "https://aistudio.google.com/apikey"},
	{translate.ProviderGroq, "Groq Cloud", "fast inference, free tier available", "https://console.groq.com/keys"},
	{translate.ProviderCustomOpenAI, "Custom OpenAI", "any OpenAI-compatible endpoint", ""},
	{translate.ProviderOllama, "Ollama", "local server, no auth needed", ""},
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys",
		Long: `Manage API keys for AI providers. Keys are stored in
$XDG_DATA_HOME/lokat/auth.json (mode 0600).

Lookup order when translating:
  1. --api-key flag
  2. ` + settings.EnvAPIKey + ` environment variable (also read from the project .env)
  3. Stored key for the provider

Examples:
  lokat auth login                         Interactive provider selection
  lokat auth login --provider groq         Store a Groq API key
  lokat auth logout --provider groq        Remove the Groq API key
  lokat auth logout                        Remove all keys
  lokat auth list                          Show stored keys`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key for a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				id, err := selectProvider()
				if err != nil {
					return err
				}
				provider = id
			}

			prov, ok := translate.LookupProvider(provider)
			if !ok {
				return fmt.Errorf("unknown provider %q", provider)
			}
			if prov.ID == translate.ProviderCustomOpenAI {
				return authLoginCustomOpenAI()
			}
			if !prov.NeedsAPIKey() {
				logInfo("%s needs no API key", prov.Name)
				return nil
			}
			return authLoginAPIKey(prov.ID)
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to configure")
	return cmd
}

func selectProvider() (string, error) {
	items := make([]string, len(allProviders))
	for i, p := range allProviders {
		items[i] = fmt.Sprintf("%-14s %s (%s)", p.id, p.name, p.desc)
	}
	sel := promptui.Select{Label: "Provider", Items: items, Size: len(items)}
	i, _, err := sel.Run()
	if err != nil {
		return "", err
	}
	return allProviders[i].id, nil
}

func providerInfo(id string) (name, helpURL string) {
	for _, p := range allProviders {
		if p.id == id {
			return p.name, p.helpURL
		}
	}
	return id, ""
}

func authLoginAPIKey(providerID string) error {
	name, helpURL := providerInfo(providerID)

	fmt.Fprintf(os.Stderr, "\n%s\n", blue(name+" — API Key Setup"))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	if helpURL != "" {
		fmt.Fprintf(os.Stderr, "  Get your API key from: %s\n\n", green(helpURL))
	}

	label := "API key"
	existing := settings.Get(providerID)
	if existing != nil && existing.Key != "" {
		label = fmt.Sprintf("API key (Enter keeps %s)", settings.MaskKey(existing.Key))
	}

	prompt := promptui.Prompt{Label: label, Mask: '*'}
	key, err := prompt.Run()
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)

	if key == "" {
		if existing != nil && existing.Key != "" {
			logInfo("Keeping existing key")
			return nil
		}
		return errors.New("no API key provided")
	}

	if err := settings.SetAPIKey(providerID, key, ""); err != nil {
		return fmt.Errorf("saving API key: %w", err)
	}
	logSuccess("%s API key saved", name)
	fmt.Fprintf(os.Stderr, "\n  You can now use: lokat translate --provider %s\n\n", providerID)
	return nil
}

func authLoginCustomOpenAI() error {
	fmt.Fprintf(os.Stderr, "\n%s\n", blue("Custom OpenAI-Compatible Endpoint"))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	urlPrompt := promptui.Prompt{
		Label:    "Base URL (e.g. http://localhost:8080/v1)",
		Validate: validateBaseURL,
	}
	baseURL, err := urlPrompt.Run()
	if err != nil {
		return err
	}

	keyPrompt := promptui.Prompt{Label: "API key (optional)", Mask: '*'}
	key, err := keyPrompt.Run()
	if err != nil {
		return err
	}

	if err := settings.SetAPIKey(translate.ProviderCustomOpenAI, strings.TrimSpace(key), strings.TrimSpace(baseURL)); err != nil {
		return fmt.Errorf("saving endpoint: %w", err)
	}
	logSuccess("Custom endpoint saved")
	return nil
}

func validateBaseURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("enter an http(s) URL")
	}
	return nil
}

func newAuthLogoutCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored API keys",
		Long: `Remove the stored key for one provider, or for all providers when
--provider is not given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider != "" {
				if err := settings.Remove(provider); err != nil {
					return fmt.Errorf("removing %s credentials: %w", provider, err)
				}
				logSuccess("%s credentials removed", provider)
				return nil
			}

			var errs []error
			for _, p := range allProviders {
				if err := settings.Remove(p.id); err != nil {
					errs = append(errs, fmt.Errorf("removing %s credentials: %w", p.id, err))
				}
			}
			if err := errors.Join(errs...); err != nil {
				return err
			}
			logSuccess("All stored credentials removed")
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to log out (default: all)")
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored API keys",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "\n%s\n", blue("Stored Credentials"))
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

			for _, p := range allProviders {
				fmt.Fprintf(os.Stderr, "  %-14s %s\n", p.id, credentialStatus(p.id))
			}

			fmt.Fprintf(os.Stderr, "\n  %s\n", yellow("Environment Variables"))
			if envKey := os.Getenv(settings.EnvAPIKey); envKey != "" {
				fmt.Fprintf(os.Stderr, "  %s: %s (overrides stored keys)\n", settings.EnvAPIKey, green(settings.MaskKey(envKey)))
			} else {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", settings.EnvAPIKey, red("not set"))
			}
			fmt.Fprintln(os.Stderr)
		},
	}
}

func credentialStatus(id string) string {
	if prov, ok := translate.LookupProvider(id); ok && !prov.NeedsAPIKey() && id != translate.ProviderCustomOpenAI {
		return "no key needed"
	}
	c := settings.Get(id)
	switch {
	case c == nil:
		return red("not configured")
	case c.Key != "" && c.BaseURL != "":
		return fmt.Sprintf("%s (key: %s, endpoint: %s)", green("configured"), settings.MaskKey(c.Key), c.BaseURL)
	case c.Key != "":
		return fmt.Sprintf("%s (key: %s)", green("configured"), settings.MaskKey(c.Key))
	case c.BaseURL != "":
		return fmt.Sprintf("%s (endpoint: %s, no key)", green("configured"), c.BaseURL)
	}
	return red("not configured")
}
