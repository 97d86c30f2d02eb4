// ABOUTME: Scripted conversation backend for local runs and E2E testing of coven-lanes
// ABOUTME: Usage: fake-backend [-addr localhost:8080] [-token secret | -jwt-secret key] [-log-level debug]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2389/coven-lanes/internal/auth"
	"github.com/2389/coven-lanes/internal/config"
	"github.com/2389/coven-lanes/internal/fakebackend"
	"github.com/2389/coven-lanes/internal/logging"
	"github.com/2389/coven-lanes/internal/roles"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "HTTP listen address")
	token := flag.String("token", "", "Static bearer token required from clients")
	jwtSecret := flag.String("jwt-secret", "", "Require HS256 JWTs signed with this secret instead of a static token")
	subject := flag.String("jwt-subject", "lanes-client", "Subject of the development JWT printed at startup")
	level := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	if err := run(*addr, *token, *jwtSecret, *subject, *level); err != nil {
		log.Fatal(err)
	}
}

func run(addr, token, jwtSecret, subject, level string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.Setup(config.LoggingConfig{Level: level}, os.Stderr)

	var verifier auth.Verifier
	switch {
	case jwtSecret != "":
		jv := auth.NewJWTVerifier([]byte(jwtSecret))
		devToken, err := jv.Generate(subject, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("issuing development token: %w", err)
		}
		// Printed on stdout so scripts can capture it as the client's server.token.
		fmt.Println(devToken)
		verifier = jv
	case token != "":
		verifier = auth.StaticToken(token)
	}

	srv := &http.Server{
		Addr: addr,
		Handler: fakebackend.New(fakebackend.Options{
			Verifier: verifier,
			Catalog:  roles.NewCatalog(nil, nil),
			Logger:   logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake backend listening", "addr", addr, "auth", verifier != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Fprintln(os.Stderr, "stopped")
	return nil
}
