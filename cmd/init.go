package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goaide/internal/config"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactively create a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runInit() error {
	cfgPath := resolveConfigPath()
	if _, err := os.Stat(cfgPath); err == nil {
		var overwrite bool
		if err := huh.NewConfirm().
			Title(fmt.Sprintf("%s already exists. Overwrite?", cfgPath)).
			Value(&overwrite).Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println("Keeping the existing config.")
			return nil
		}
	}

	var (
		providerName string
		apiKey       string
		model        string
		enableTG     bool
		tgToken      string
		enableDC     bool
		dcToken      string
		httpPort     = "18890"
		httpToken    string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model provider").
				Options(
					huh.NewOption("Anthropic", "anthropic"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Zhipu", "zhipu"),
				).
				Value(&providerName),
			huh.NewInput().
				Title("API key").
				Description("Stored in the config file (0600). The GOAIDE_*_API_KEY env var wins when set.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Model").
				Description("Leave empty for the provider default.").
				Value(&model),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Enable Telegram?").Value(&enableTG),
			huh.NewInput().
				Title("Telegram bot token").
				EchoMode(huh.EchoModePassword).
				Value(&tgToken),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Enable Discord?").Value(&enableDC),
			huh.NewInput().
				Title("Discord bot token").
				EchoMode(huh.EchoModePassword).
				Value(&dcToken),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("HTTP port").
				Value(&httpPort).
				Validate(func(s string) error {
					if _, err := strconv.Atoi(s); err != nil {
						return fmt.Errorf("port must be a number")
					}
					return nil
				}),
			huh.NewInput().
				Title("HTTP bearer token").
				Description("Leave empty to serve the local API unauthenticated.").
				EchoMode(huh.EchoModePassword).
				Value(&httpToken),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	port, _ := strconv.Atoi(httpPort)
	cfg := &config.Config{}
	cfg.Providers.Default = providerName
	pcfg := config.ProviderConfig{APIKey: apiKey, Model: model}
	switch providerName {
	case "openai":
		cfg.Providers.OpenAI = pcfg
	case "zhipu":
		cfg.Providers.Zhipu = pcfg
	default:
		cfg.Providers.Anthropic = pcfg
	}
	cfg.Channels.Telegram.Enabled = enableTG
	cfg.Channels.Telegram.Token = tgToken
	cfg.Channels.Discord.Enabled = enableDC
	cfg.Channels.Discord.Token = dcToken
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = port
	cfg.HTTP.Token = httpToken

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgPath, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", cfgPath, err)
	}

	fmt.Printf("Wrote %s.\n", cfgPath)
	fmt.Println("Start the runtime with: goaide serve")
	if providerName != "" && apiKey == "" {
		fmt.Println("No API key entered — set it via environment before starting.")
	}
	return nil
}
