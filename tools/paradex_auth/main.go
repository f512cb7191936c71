package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qlandys/paradex-auth/pkg/paradexapi"
	"github.com/qlandys/paradex-auth/pkg/signer"
	"github.com/qlandys/paradex-auth/pkg/types"
)

type errOutput struct {
	Error string `json:"error"`
}

var rootCmd = &cobra.Command{
	Use:   "paradex_auth",
	Short: "Paradex account derivation, auth tokens and order signing",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		setupLogger(viper.GetString("log-level"), viper.GetString("log-format"))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("api-base", paradexapi.ProdBaseURL, "Paradex REST base URL (e.g. https://api.prod.paradex.trade/v1)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading PARADEX_* variables")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text or json)")
	rootCmd.PersistentFlags().String("l2-private-key", "", "Paradex L2 private key (Stark key, 0x...)")
	rootCmd.PersistentFlags().Bool("l2-private-key-stdin", false, "Read L2 private key from stdin (preferred over argv for secrecy)")
}

// setupLogger sends logs to stderr; stdout carries the JSON results.
func setupLogger(level, format string) {
	logger := log.StandardLogger()
	logger.SetOutput(os.Stderr)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %s, using info: %v", level, err)
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)

	if format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// readL2PrivateKey returns the key from --l2-private-key / PARADEX_L2_PRIVATE_KEY,
// or the first line of stdin when --l2-private-key-stdin is set.
func readL2PrivateKey(stdin *bufio.Reader) (signer.KeyPair, error) {
	privKey := strings.TrimSpace(viper.GetString("l2-private-key"))
	if privKey == "" && viper.GetBool("l2-private-key-stdin") {
		line, err := stdin.ReadString('\n')
		if err != nil && err != io.EOF {
			return signer.KeyPair{}, fmt.Errorf("read stdin: %w", err)
		}
		privKey = strings.TrimSpace(line)
	}
	if privKey == "" {
		return signer.KeyPair{}, fmt.Errorf("missing L2 private key (use --l2-private-key-stdin)")
	}
	return signer.KeyPairFromHex(privKey)
}

func newClient() (*paradexapi.RestClient, error) {
	return paradexapi.NewClient(viper.GetString("api-base"))
}

func fetchConfig(ctx context.Context, client *paradexapi.RestClient) (types.SystemConfig, error) {
	cfg, err := client.GetSystemConfig(ctx)
	if err != nil {
		return types.SystemConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return types.SystemConfig{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func loadEnv() {
	envFile := ".env"
	for i, arg := range os.Args {
		if arg == "--env-file" && i+1 < len(os.Args) {
			envFile = os.Args[i+1]
		} else if strings.HasPrefix(arg, "--env-file=") {
			envFile = strings.TrimPrefix(arg, "--env-file=")
		}
	}
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		log.WithError(err).Warnf("failed to load %s", envFile)
	}
}

func main() {
	loadEnv()

	viper.SetEnvPrefix("paradex")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := rootCmd.Execute(); err != nil {
		_ = writeJSON(os.Stdout, errOutput{Error: err.Error()})
		os.Exit(1)
	}
}
