// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command gcs is the CLI for the GCS runtime.
//
// Usage:
//
//	gcs run --config-name assistant
//	gcs list-configs
//	gcs load-config --config-name assistant
//	gcs chat --config-name assistant
//	gcs auth
//	gcs auth-status
//	gcs switch-provider anthropic
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/credentials"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcsconfig"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcslog"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/kernel"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/oauth"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/orchestrator"
)

// CLI defines the command-line interface.
type CLI struct {
	Run            RunCmd            `cmd:"" help:"Start the runtime and keep it alive until interrupted."`
	ListConfigs    ListConfigsCmd    `cmd:"" name:"list-configs" help:"List the configurations available under the agents directory."`
	LoadConfig     LoadConfigCmd     `cmd:"" name:"load-config" help:"Load a named configuration and exit."`
	Chat           ChatCmd           `cmd:"" help:"Start an interactive chat session."`
	Auth           AuthCmd           `cmd:"" help:"Run the OAuth device-authorization flow and store the resulting credentials."`
	AuthStatus     AuthStatusCmd     `cmd:"" name:"auth-status" help:"Report whether valid credentials are stored."`
	SwitchProvider SwitchProviderCmd `cmd:"" name:"switch-provider" help:"Persist a new default LLM provider to the config file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" env:"GCS_LOG_LEVEL"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

func (cli *CLI) loadConfig() (*gcsconfig.Config, error) {
	return gcsconfig.Load(cli.Config)
}

func newKernel(ctx context.Context, cli *CLI, logger *slog.Logger) (*kernel.Kernel, *gcsconfig.Config, error) {
	cfg, err := cli.loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	k, err := kernel.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("starting kernel: %w", err)
	}
	return k, cfg, nil
}

// RunCmd starts the runtime, optionally loading a named configuration, and
// blocks until interrupted.
type RunCmd struct {
	ConfigName string `name:"config-name" help:"Configuration to load at startup."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	k, _, err := newKernel(ctx, cli, slog.Default())
	if err != nil {
		return err
	}
	defer k.Shutdown(context.Background())

	if c.ConfigName != "" {
		if err := k.LoadConfiguration(c.ConfigName); err != nil {
			return fmt.Errorf("loading configuration %q: %w", c.ConfigName, err)
		}
		slog.Info("configuration loaded", "name", c.ConfigName)
	}

	slog.Info("gcs runtime ready, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

// ListConfigsCmd lists the available configurations.
type ListConfigsCmd struct{}

func (c *ListConfigsCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	names, err := gcsconfig.ListManifests(cfg.AgentsDir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no configurations found under", cfg.AgentsDir)
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// LoadConfigCmd loads a named configuration and reports the result.
type LoadConfigCmd struct {
	ConfigName string `name:"config-name" required:"" help:"Name of the configuration to load."`
}

func (c *LoadConfigCmd) Run(cli *CLI) error {
	ctx := context.Background()
	k, _, err := newKernel(ctx, cli, slog.Default())
	if err != nil {
		return err
	}
	defer k.Shutdown(ctx)

	if err := k.LoadConfiguration(c.ConfigName); err != nil {
		return fmt.Errorf("loading configuration %q: %w", c.ConfigName, err)
	}
	fmt.Printf("loaded configuration %q\n", c.ConfigName)
	return nil
}

// ChatCmd starts an interactive REPL against one conversation.
type ChatCmd struct {
	ConfigName string `name:"config-name" help:"Configuration to load before chatting."`
	Session    string `help:"Conversation id to resume or create." default:"cli"`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	k, _, err := newKernel(ctx, cli, slog.Default())
	if err != nil {
		return err
	}
	defer k.Shutdown(context.Background())

	if c.ConfigName != "" {
		if err := k.LoadConfiguration(c.ConfigName); err != nil {
			return fmt.Errorf("loading configuration %q: %w", c.ConfigName, err)
		}
	}

	orch := k.Conversation(c.Session)

	fmt.Println("gcs chat — type a message and press Enter, Ctrl+D to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := scanner.Text()
		if input == "" {
			continue
		}

		if err := runTurn(ctx, orch, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

// runTurn drains a single turn's event stream to the terminal.
func runTurn(ctx context.Context, orch *orchestrator.Orchestrator, input string) error {
	for event := range orch.RunTurn(ctx, input) {
		switch event.Kind {
		case orchestrator.EventToolCall:
			fmt.Printf("  [tool call] %s\n", event.ToolName)
		case orchestrator.EventToolResponse:
			if event.Result.Success {
				fmt.Printf("  [tool ok] %s\n", event.ToolName)
			} else {
				fmt.Printf("  [tool failed] %s: %s\n", event.ToolName, event.Result.Error)
			}
		case orchestrator.EventAssistantResponse:
			fmt.Println(event.Content)
		case orchestrator.EventFinalResponse:
			fmt.Println(event.Content)
			if len(event.SuggestedAgents) > 0 {
				fmt.Println("suggested:", event.SuggestedAgents)
			}
		case orchestrator.EventCancelled:
			return context.Canceled
		case orchestrator.EventError:
			return event.Err
		}
	}
	return nil
}

// AuthCmd drives the OAuth device-authorization flow (§4.2) and persists
// the resulting credentials to the credential store.
type AuthCmd struct{}

// cliPrompter prints the verification URI/code to the terminal.
type cliPrompter struct{}

func (cliPrompter) PromptVerification(auth oauth.DeviceAuthorization) {
	fmt.Println("To authorize this client, visit:")
	if auth.VerificationURIComplete != "" {
		fmt.Println(" ", auth.VerificationURIComplete)
	} else {
		fmt.Printf("  %s (code: %s)\n", auth.VerificationURI, auth.UserCode)
	}
	fmt.Println("waiting for authorization...")
}

func (c *AuthCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	client := oauth.New(cfg.QwenClientID, cfg.QwenAuthorizationServer)
	store, err := credentials.New(filepath.Join(cfg.RuntimeDataDir, "oauth_creds.json"),
		oauth.CredentialRefresher{Client: client})
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}

	creds, err := client.Authenticate(context.Background(), "", cliPrompter{})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if err := store.Save(creds, cfg.LockTimeout); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Println("authentication succeeded, credentials stored")
	return nil
}

// AuthStatusCmd reports whether the credential store currently holds an
// unexpired credential; an expired one is reported as not authenticated
// even when it carries a refresh token.
type AuthStatusCmd struct{}

func (c *AuthStatusCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	client := oauth.New(cfg.QwenClientID, cfg.QwenAuthorizationServer)
	store, err := credentials.New(filepath.Join(cfg.RuntimeDataDir, "oauth_creds.json"),
		oauth.CredentialRefresher{Client: client})
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}

	if store.HasValid(cfg.LockTimeout) {
		fmt.Println("authenticated: valid credentials are stored")
		return nil
	}
	fmt.Println("not authenticated: run `gcs auth` to authenticate")
	return nil
}

// SwitchProviderCmd rewrites the config file's default LLM provider.
type SwitchProviderCmd struct {
	Name string `arg:"" help:"Provider name to switch to."`
}

func (c *SwitchProviderCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for switch-provider")
	}

	cfg, err := gcsconfig.Load(cli.Config)
	if err != nil {
		return err
	}
	cfg.LLM.Provider = c.Name

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(cli.Config, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("switched default provider to %q\n", c.Name)
	return nil
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("gcs"),
		kong.Description("GCS runtime - a generic control system for LLM tool orchestration"),
		kong.UsageOnError(),
	)

	gcslog.New(gcslog.ParseLevel(cli.LogLevel), os.Stderr, cli.LogFormat)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
