package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/store/pg"
	"github.com/nextlevelbuilder/goaide/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("goaide doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND — defaults plus env will be used)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Providers:")
	checkProvider("anthropic", cfg.Providers.Anthropic.APIKey)
	checkProvider("openai", cfg.Providers.OpenAI.APIKey)
	checkProvider("zhipu", cfg.Providers.Zhipu.APIKey)
	if cfg.Providers.Default != "" {
		fmt.Printf("    default: %s\n", cfg.Providers.Default)
	}

	fmt.Println()
	root := cfg.StorageRoot()
	fmt.Printf("  Data root: %s", root)
	if err := checkWritable(root); err != nil {
		fmt.Printf(" (NOT WRITABLE: %s)\n", err)
	} else {
		fmt.Println(" (writable)")
	}

	fmt.Print("  Postgres:  ")
	if dsn := cfg.Storage.PostgresDSN; dsn == "" {
		fmt.Println("not configured (in-memory stores with file checkpoints)")
	} else if err := pingPostgres(dsn); err != nil {
		fmt.Printf("UNREACHABLE (%s)\n", err)
	} else {
		fmt.Println("reachable")
	}

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("telegram", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token)
	checkChannel("discord", cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token)
	fmt.Printf("    http: %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	if cfg.HTTP.Token == "" {
		fmt.Println(" (no bearer token)")
	} else {
		fmt.Println(" (token set)")
	}
}

func checkProvider(name, key string) {
	if key == "" {
		fmt.Printf("    %s: no key\n", name)
		return
	}
	fmt.Printf("    %s: key set (%d chars)\n", name, len(key))
}

func checkChannel(name string, enabled bool, token string) {
	switch {
	case !enabled:
		fmt.Printf("    %s: disabled\n", name)
	case token == "":
		fmt.Printf("    %s: ENABLED BUT NO TOKEN\n", name)
	default:
		fmt.Printf("    %s: enabled\n", name)
	}
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func pingPostgres(dsn string) error {
	db, err := pg.OpenDB(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
