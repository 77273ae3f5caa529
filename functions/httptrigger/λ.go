package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ccamel/managedfn/internal/azure"
	"github.com/ccamel/managedfn/pkg/managedfn"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	// FunctionRoute is the route bound to the function by the Functions host.
	FunctionRoute = "/api/HttpTriggerFunction"
	// EnvPort is the variable the Functions host uses to tell the custom handler where to listen.
	EnvPort     = "FUNCTIONS_CUSTOMHANDLER_PORT"
	defaultPort = "8080"

	shutdownTimeout = 10 * time.Second
)

var identityFactory = azure.IdentityFactory(azure.NewTransport())

// EntryPoint is the entry point for this function.
func EntryPoint(w http.ResponseWriter, r *http.Request) {
	managedfn.Invokeλ(w, r, afero.NewOsFs(), managedfn.DefaultConfig, os.LookupEnv, identityFactory)
}

func newServeMux(entryPoint http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(FunctionRoute, entryPoint)

	return mux
}

func listenAddress(lookupEnv managedfn.LookupEnvFunc) string {
	port, ok := lookupEnv(EnvPort)
	if !ok || port == "" {
		port = defaultPort
	}

	return net.JoinHostPort("", port)
}

func serve(ctx context.Context, listener net.Listener, handler http.Handler) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("⚠️ .env not loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := listenAddress(os.LookupEnv)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal().Err(err).Str("address", addr).Msg("❌ unable to listen")
	}

	log.Info().Str("address", listener.Addr().String()).Msg("🚀 custom handler listening")

	if err := serve(ctx, listener, newServeMux(EntryPoint)); err != nil {
		log.Fatal().Err(err).Msg("❌ custom handler stopped")
	}

	log.Info().Msg("👋 custom handler stopped")
}
