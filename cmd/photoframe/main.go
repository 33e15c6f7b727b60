package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"photoframe/internal/accounts"
	"photoframe/internal/auth"
	"photoframe/internal/config"
	"photoframe/internal/credential"
	"photoframe/internal/httpserver"
	"photoframe/internal/logging"
	"photoframe/internal/photos"
	"photoframe/internal/ratelimit"
	"photoframe/internal/session"
	"photoframe/internal/store"
	"photoframe/internal/tokens"
	"photoframe/internal/uploads"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "passwd" {
		os.Exit(passwdCmd(os.Args[2:]))
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "photoframe:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr    = flag.String("addr", "", "listen address (overrides PORT/ADDR)")
		root    = flag.String("root", "", "photo directory (overrides PHOTO_ROOT)")
		dataDir = flag.String("data", "", "data directory for records and thumbnails (overrides DATA_DIR)")
		cfgPath = flag.String("config", "", "path to a .json or .yaml config file (optional)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath, os.Getenv)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *root != "" {
		cfg.Root = *root
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, File: cfg.Log.File})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(log)

	switch {
	case cfg.AdminPasswordDefaulted:
		log.Warn("ADMIN_PASSWORD not set, using the built-in default; change it before exposing the server")
	case !credential.IsHashed(cfg.AdminPassword):
		log.Warn("admin password is configured in plaintext; store a hash from 'photoframe passwd' instead")
	}

	srv, err := build(cfg, log)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("photoframe listening", "addr", cfg.Addr, "root", cfg.Root, "data", cfg.DataDir)
		log.Info("webdav endpoint", "path", "/dav/", "user", auth.AdminUser)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}

// build wires the stores, managers and access gate behind the HTTP server.
func build(cfg config.Config, log *slog.Logger) (*httpserver.Server, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data: %w", err)
	}
	hasher, err := credential.NewHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	redisplay, err := credential.NewRedisplay(cfg.SessionSecret)
	if err != nil {
		return nil, err
	}
	accStore, err := store.Open[accounts.Account](filepath.Join(cfg.DataDir, "access-accounts.json"), log)
	if err != nil {
		return nil, err
	}
	tokStore, err := store.Open[tokens.Token](filepath.Join(cfg.DataDir, "upload-tokens.json"), log)
	if err != nil {
		return nil, err
	}
	upStore, err := store.Open[uploads.Entry](filepath.Join(cfg.DataDir, "upload-metadata.json"), log)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewManager(session.Options{
		Secret: cfg.SessionSecret,
		MaxAge: cfg.SessionMaxAge.Std(),
		Secure: cfg.SecureCookies,
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	limits := ratelimit.Options{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Lockout:     cfg.RateLimit.Lockout.Std(),
		Window:      cfg.RateLimit.Window.Std(),
	}
	acc := accounts.New(accounts.Options{Store: accStore, Hasher: hasher, Limiter: ratelimit.New(limits), Logger: log})
	tok := tokens.New(tokens.Options{Store: tokStore, Hasher: hasher, Redisplay: redisplay, Logger: log})
	gate := auth.New(auth.Options{
		Sessions:      sessions,
		Accounts:      acc,
		Tokens:        tok,
		Hasher:        hasher,
		AdminLimiter:  ratelimit.New(limits),
		AdminPassword: cfg.AdminPassword,
		AdminMaxAge:   cfg.SessionMaxAge.Std(),
		Logger:        log,
	})

	lib, err := photos.New(photos.Options{
		Root:        cfg.Root,
		StateDir:    cfg.DataDir,
		MaxFileSize: cfg.MaxFileSize,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	if err := lib.EnsureFolders(cfg.DefaultFolders); err != nil {
		return nil, fmt.Errorf("default folders: %w", err)
	}

	return httpserver.New(httpserver.Options{
		Config:   cfg,
		Gate:     gate,
		Accounts: acc,
		Tokens:   tok,
		Library:  lib,
		Uploads:  uploads.New(upStore, nil),
		Logger:   log,
	})
}

// passwdCmd prints a bcrypt hash suitable for ADMIN_PASSWORD.
func passwdCmd(args []string) int {
	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	var (
		password = fs.String("p", "", "password (prompted for when omitted)")
		cost     = fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *cost < bcrypt.MinCost || *cost > bcrypt.MaxCost {
		fmt.Fprintf(os.Stderr, "invalid cost %d (min=%d max=%d)\n", *cost, bcrypt.MinCost, bcrypt.MaxCost)
		return 2
	}
	pw := *password
	if pw == "" {
		var err error
		if pw, err = promptPassword(os.Stdin, os.Stderr); err != nil {
			fmt.Fprintln(os.Stderr, "read password:", err)
			return 1
		}
	}
	h, err := credential.NewHasher(*cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	out, err := h.Hash(pw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bcrypt:", err)
		return 1
	}
	fmt.Println(out)
	return 0
}

// promptPassword reads a password without echo from a terminal, or one
// line from piped input.
func promptPassword(in *os.File, out io.Writer) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		for {
			fmt.Fprint(out, "Password: ")
			p1, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			fmt.Fprint(out, "Confirm password: ")
			p2, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			switch {
			case len(p1) == 0:
				fmt.Fprintln(out, "password cannot be empty")
			case string(p1) != string(p2):
				fmt.Fprintln(out, "passwords do not match")
			default:
				return string(p1), nil
			}
		}
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
