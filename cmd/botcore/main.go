// Package main provides the CLI entry point for the botcore client.
package main

import (
	"bufio"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nanoim/botcore/internal/bot"
	"github.com/nanoim/botcore/internal/config"
	"github.com/nanoim/botcore/internal/errs"
	"github.com/nanoim/botcore/internal/logging"
	"github.com/nanoim/botcore/internal/login"
	"github.com/nanoim/botcore/internal/metrics"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "botcore",
		Short: "Botcore - protocol client core",
		Long: `Botcore maintains an authenticated session against the IM servers:
framed transport, packet correlation, wt-login (password and QR) and
the keep-alive loop. Higher-level features build on top of it.`,
		Version: Version,
	}

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loginCmd() *cobra.Command {
	var (
		configPath string
		useQR      bool
		uin        uint64
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the session tickets",
		Long:  "Run the password or QR login flow and persist the resulting keystore.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			b, err := bot.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create bot: %w", err)
			}
			defer b.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := b.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}

			if useQR {
				err = qrLogin(ctx, b)
			} else {
				err = passwordLogin(ctx, b, uin)
			}
			if err != nil {
				return err
			}

			if err := b.SaveKeystore(); err != nil {
				return fmt.Errorf("failed to save keystore: %w", err)
			}
			if info, statErr := os.Stat(cfg.Bot.KeystorePath); statErr == nil {
				fmt.Printf("Login successful, keystore saved to %s (%s)\n",
					cfg.Bot.KeystorePath, humanize.IBytes(uint64(info.Size())))
			} else {
				fmt.Printf("Login successful, keystore saved to %s\n", cfg.Bot.KeystorePath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().BoolVar(&useQR, "qr", false, "Use QR-code login instead of password")
	cmd.Flags().Uint64Var(&uin, "uin", 0, "Account id for password login")

	return cmd
}

// qrLogin drives the fetch/poll/exchange QR flow.
func qrLogin(ctx context.Context, b *bot.Bot) error {
	code, err := b.Login().FetchQRCode(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Scan to log in: %s\n", code.URL)
	if len(code.PNG) > 0 {
		if err := os.WriteFile("qrcode.png", code.PNG, 0o644); err == nil {
			fmt.Println("QR code image written to qrcode.png")
		}
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := b.Login().QueryQRCodeStatus(ctx)
		if err != nil {
			return err
		}
		switch status {
		case login.QRConfirmed:
			return b.Login().QRCodeLogin(ctx)
		case login.QRExpired, login.QRCanceled:
			return fmt.Errorf("qr login aborted: %s", status)
		}
	}
}

// passwordLogin drives the password flow including captcha and SMS
// follow-ups.
func passwordLogin(ctx context.Context, b *bot.Bot, uin uint64) error {
	if uin == 0 {
		return fmt.Errorf("password login requires --uin")
	}
	b.Store().SetUin(uin)

	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	passwordMD5 := md5.Sum(raw)

	err = b.Login().PasswordLogin(ctx, passwordMD5)
	for err != nil {
		var loginErr *errs.LoginError
		if !errors.As(err, &loginErr) {
			return err
		}
		switch login.State(loginErr.State) {
		case login.StateCaptcha:
			fmt.Printf("Captcha required, solve it at: %s\n", loginErr.Message)
			ticket, rerr := readLine("Captcha ticket: ")
			if rerr != nil {
				return rerr
			}
			err = b.Login().SubmitCaptcha(ctx, ticket)
		case login.StateSmsRequired, login.StateDeviceLockSms:
			if rerr := b.Login().RequestSmsCode(ctx); rerr != nil {
				return rerr
			}
			code, rerr := readLine("SMS code: ")
			if rerr != nil {
				return rerr
			}
			err = b.Login().SubmitSms(ctx, code)
		default:
			return err
		}
	}
	return nil
}

func readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot with a stored session",
		Long:  "Connect, resume the stored session and keep it alive until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			b, err := bot.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create bot: %w", err)
			}

			if !b.Store().HasSession() {
				return fmt.Errorf("no stored session in %s; run login first", cfg.Bot.KeystorePath)
			}

			var metricsSrv *metrics.Server
			if cfg.Metrics.Enabled {
				metricsSrv = metrics.NewServer(cfg.Metrics.Address,
					logging.NewLogger(cfg.Bot.LogLevel, cfg.Bot.LogFormat))
				if err := metricsSrv.Start(); err != nil {
					return fmt.Errorf("failed to start metrics endpoint: %w", err)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			connectErr := b.Connect(ctx)
			cancel()
			if connectErr != nil {
				return fmt.Errorf("failed to connect: %w", connectErr)
			}

			// Start before resuming so the session watcher sees the
			// success event.
			if err := b.Start(); err != nil {
				return err
			}

			resumeCtx, cancelResume := context.WithTimeout(context.Background(), 30*time.Second)
			resumeErr := b.Login().ResumeSession(resumeCtx)
			cancelResume()
			if resumeErr != nil {
				b.Close()
				return fmt.Errorf("failed to resume session: %w", resumeErr)
			}
			fmt.Printf("Bot online (uin %d)\n", b.Store().Uin())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

			b.Close()
			if metricsSrv != nil {
				shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
				_ = metricsSrv.Stop(shutdownCtx)
				cancelShutdown()
			}
			if err := b.SaveKeystore(); err != nil {
				fmt.Printf("Keystore save error: %v\n", err)
			}
			fmt.Println("Bot stopped.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")

	return cmd
}
