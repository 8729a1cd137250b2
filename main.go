package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/term"

	aesgo "github.com/mario-areias/padding-oracle/aes-go"
	"github.com/mario-areias/padding-oracle/attack"
	"github.com/mario-areias/padding-oracle/config"
	"github.com/mario-areias/padding-oracle/key"
	"github.com/mario-areias/padding-oracle/logging"
	"github.com/mario-areias/padding-oracle/metrics"
	"github.com/mario-areias/padding-oracle/oracle"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Configuration file path (JSON)")
		message     = flag.String("message", "", "Secret message the oracle encrypts")
		prompt      = flag.Bool("prompt", false, "Read the secret message from the terminal without echo")
		cipherName  = flag.String("cipher", "", "Oracle block cipher: aes or aesgo")
		workers     = flag.Int("workers", 0, "Number of blocks recovered in parallel")
		seed        = flag.String("seed", "", "Hex seed for a reproducible oracle key")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
		logFormat   = flag.String("log-format", "", "Log format: text or json")
		showMetrics = flag.Bool("metrics", false, "Log attack metrics when done")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *message != "" {
		cfg.Attack.Message = *message
	}
	if *cipherName != "" {
		cfg.Oracle.Cipher = *cipherName
	}
	if *workers > 0 {
		cfg.Attack.Workers = *workers
	}
	if *seed != "" {
		cfg.Oracle.KeySeed = *seed
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *prompt {
		secret, err := readSecret(os.Stdin, os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read message: %v\n", err)
			os.Exit(1)
		}
		cfg.Attack.Message = secret
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := prometheus.NewRegistry()
	recovered, err := run(ctx, cfg, logger, reg)
	if *showMetrics {
		logMetrics(logger, reg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Attack failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("decrypted string: %s\n", recovered)
}

// run encrypts the configured message with a fresh oracle, attacks the
// ciphertext and returns the unpadded recovered plaintext.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) ([]byte, error) {
	opts := []oracle.Option{
		oracle.WithCipher(cfg.Oracle.Cipher),
		oracle.WithLogger(logging.Component(logger, "oracle")),
	}
	if s := cfg.Seed(); s != nil {
		k, err := key.Derive(s, "padding-oracle demo key")
		if err != nil {
			return nil, fmt.Errorf("deriving key: %w", err)
		}
		opts = append(opts, oracle.WithKey(k))
	}

	o, err := oracle.New(opts...)
	if err != nil {
		return nil, err
	}

	iv, ciphertext, err := o.EncryptString(cfg.Attack.Message)
	if err != nil {
		return nil, err
	}
	logger.Info("message encrypted",
		zap.String("iv", fmt.Sprintf("%x", iv)),
		zap.String("ciphertext", fmt.Sprintf("%x", ciphertext)),
	)

	r, err := attack.NewRecoverer(o, o.BlockSize(),
		attack.WithLogger(logging.Component(logger, "recoverer")),
		attack.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}

	driver := attack.NewDriver(r,
		attack.WithWorkers(cfg.Attack.Workers),
		attack.WithDriverLogger(logging.Component(logger, "driver")),
	)

	padded, err := driver.Decrypt(ctx, iv, ciphertext)
	if err != nil {
		return nil, err
	}
	logger.Debug("padded plaintext recovered", zap.String("plaintext", fmt.Sprintf("%x", padded)))

	return aesgo.RemovePadding(padded)
}

// readSecret reads one line from in. On a terminal the input is not echoed.
func readSecret(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "Secret message: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func logMetrics(logger *zap.Logger, g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		logger.Warn("gathering metrics failed", zap.Error(err))
		return
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.String("name", mf.GetName())}
			for _, lp := range m.GetLabel() {
				fields = append(fields, zap.String(lp.GetName(), lp.GetValue()))
			}
			switch {
			case m.GetCounter() != nil:
				fields = append(fields, zap.Float64("value", m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				fields = append(fields,
					zap.Uint64("count", m.GetHistogram().GetSampleCount()),
					zap.Float64("sum", m.GetHistogram().GetSampleSum()),
				)
			}
			logger.Info("metric", fields...)
		}
	}
}
