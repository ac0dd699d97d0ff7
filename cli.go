package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MarkoPoloResearchLab/escapeboard/internal/auth"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/config"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/store"
)

const (
	flagEnvFile = "env-file"
	flagClient  = "client"
	flagAt      = "at"
	flagOutput  = "output"

	outputJSON = "json"
	outputYAML = "yaml"
)

func newRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "escapeboard",
		Short: "Escape arcade play counters and leaderboards",
		RunE:  runServeCommand,
	}
	rootCommand.SilenceUsage = true
	rootCommand.PersistentFlags().String(flagEnvFile, config.DefaultEnvFile, "dotenv file loaded before the environment is read")
	rootCommand.AddCommand(newServeCommand())
	rootCommand.AddCommand(newGenerateKeyCommand())
	rootCommand.AddCommand(newSignCommand())
	rootCommand.AddCommand(newInspectCommand())
	return rootCommand
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServeCommand,
	}
}

func loadCommandConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, flagError := cmd.Flags().GetString(flagEnvFile)
	if flagError != nil {
		return config.Config{}, flagError
	}
	serviceConfig, loadConfigError := config.Load(envFile)
	if loadConfigError != nil {
		return config.Config{}, fmt.Errorf("config error: %w", loadConfigError)
	}
	return serviceConfig, nil
}

func runServeCommand(cmd *cobra.Command, args []string) error {
	serviceConfig, loadConfigError := loadCommandConfig(cmd)
	if loadConfigError != nil {
		return loadConfigError
	}
	logger, loggerError := newLogger(cmd.ErrOrStderr(), serviceConfig.LogFormat, serviceConfig.LogLevel, serviceConfig.Location())
	if loggerError != nil {
		return fmt.Errorf("config error: %w", loggerError)
	}

	httpServer := newHTTPServer(serviceConfig, logger)
	listener, listenError := net.Listen("tcp", serviceConfig.ListenAddress)
	if listenError != nil {
		return fmt.Errorf("listen on %s: %w", serviceConfig.ListenAddress, listenError)
	}

	signalContext, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	logger.Info("escapeboard listening",
		"address", listener.Addr().String(),
		"data_file", serviceConfig.DataFile,
		"reject_replays", serviceConfig.RejectReplays,
	)
	return serveUntilDone(signalContext, httpServer, listener, logger)
}

const secretByteLength = 32

func newGenerateKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-key",
		Short: "Generate a random API_KEY shared with game clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			sharedSecret, sharedSecretError := generateRandomHex(secretByteLength)
			if sharedSecretError != nil {
				return fmt.Errorf("generate API_KEY: %w", sharedSecretError)
			}
			if _, writeError := fmt.Fprintf(cmd.OutOrStdout(), "API_KEY=%s\n", sharedSecret); writeError != nil {
				return fmt.Errorf("write API_KEY: %w", writeError)
			}
			return nil
		},
	}
}

var randomRead = rand.Read

func generateRandomHex(byteLength int) (string, error) {
	randomBytes := make([]byte, byteLength)
	if _, readError := randomRead(randomBytes); readError != nil {
		return "", fmt.Errorf("read random bytes: %w", readError)
	}
	return hex.EncodeToString(randomBytes), nil
}

func newSignCommand() *cobra.Command {
	signCommand := &cobra.Command{
		Use:   "sign",
		Short: "Print an Authorization header value for a client identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceConfig, loadConfigError := loadCommandConfig(cmd)
			if loadConfigError != nil {
				return loadConfigError
			}
			clientIdentifier, _ := cmd.Flags().GetString(flagClient)
			timestampMs, _ := cmd.Flags().GetInt64(flagAt)
			if timestampMs == 0 {
				timestampMs = timeNow().UnixMilli()
			}
			bearerToken := auth.BearerToken(serviceConfig.APIKey, timestampMs, clientIdentifier)
			if _, writeError := fmt.Fprintln(cmd.OutOrStdout(), bearerToken); writeError != nil {
				return fmt.Errorf("write token: %w", writeError)
			}
			return nil
		},
	}
	signCommand.Flags().String(flagClient, "", "client identifier sent as User-Agent")
	signCommand.Flags().Int64(flagAt, 0, "timestamp in Unix milliseconds (default now)")
	_ = signCommand.MarkFlagRequired(flagClient)
	return signCommand
}

func newInspectCommand() *cobra.Command {
	inspectCommand := &cobra.Command{
		Use:   "inspect",
		Short: "Print the stored counters and leaderboards",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString(flagOutput)
			if outputFormat != outputJSON && outputFormat != outputYAML {
				return fmt.Errorf("unsupported output %q: want %s or %s", outputFormat, outputJSON, outputYAML)
			}
			serviceConfig, loadConfigError := loadCommandConfig(cmd)
			if loadConfigError != nil {
				return loadConfigError
			}

			documentStore := store.New(serviceConfig.DataFile, store.Options{Logger: discardLogger()})
			document, loadError := documentStore.Load()
			if loadError != nil {
				return fmt.Errorf("inspect %s: %w", documentStore.Path(), loadError)
			}
			encoded, encodeError := json.MarshalIndent(document, "", "  ")
			if encodeError != nil {
				return fmt.Errorf("encode document: %w", encodeError)
			}
			if outputFormat == outputYAML {
				encoded, encodeError = jsonToYAML(encoded)
				if encodeError != nil {
					return fmt.Errorf("encode document: %w", encodeError)
				}
			} else {
				encoded = append(encoded, '\n')
			}
			_, writeError := cmd.OutOrStdout().Write(encoded)
			return writeError
		},
	}
	inspectCommand.Flags().String(flagOutput, outputJSON, "output format: json or yaml")
	return inspectCommand
}

// jsonToYAML re-emits a JSON document as block-style YAML. Scalars keep their
// JSON types, so integers stay integers and names stay strings.
func jsonToYAML(encoded []byte) ([]byte, error) {
	var root yaml.Node
	if unmarshalError := yaml.Unmarshal(encoded, &root); unmarshalError != nil {
		return nil, unmarshalError
	}
	clearNodeStyle(&root)
	return yaml.Marshal(&root)
}

func clearNodeStyle(node *yaml.Node) {
	node.Style = 0
	for _, child := range node.Content {
		clearNodeStyle(child)
	}
}
