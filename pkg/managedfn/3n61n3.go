package managedfn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ccamel/managedfn/internal/util"
	"github.com/flimzy/donewriter"
	"github.com/go-playground/validator/v10"
	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Invokeλ runs the function for the given request.
func Invokeλ(
	w http.ResponseWriter,
	r *http.Request,
	fs afero.Fs,
	configFactory ConfigFactory,
	lookupEnv LookupEnvFunc,
	identityFactory IdentityFactory,
) {
	alice.
		New(
			hlog.NewHandler(log.Logger),
			hlog.RequestIDHandler("req-id", "Request-Id"),
			donewriter.WrapWriter,
			recoverHandler(),
			installValidatorHandler(),
			logIncomingRequestHandler(),
			resolveConfigurationHandler(fs, configFactory, lookupEnv),
			acquireIdentityHandler(identityFactory),
			buildClientsHandler(),
			buildPayloadHandler(),
			fetchSecretHandler(),
			listContainersHandler(),
		).
		Then(respondHandler()).
		ServeHTTP(w, r)
}

// sendFailure reports a failure which escaped the dependency boundaries.
func sendFailure(w http.ResponseWriter, r *http.Request, stage string, err error) {
	hlog.
		FromRequest(r).
		Error().
		Str("stage", stage).
		Err(err).
		Msg("❌ function execution failed")

	_ = writeJSON(w, http.StatusInternalServerError, NewErrorPayload(err))
}

// writeJSON serializes v (pretty-printed, without trailing newline) before writing anything, so that nothing is sent on error.
func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	buf := &bytes.Buffer{}

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return err
	}

	w.Header().Set(util.HeaderContentType, util.MediaTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(bytes.TrimRight(buf.Bytes(), "\n"))

	return nil
}

// isolate runs a dependency call, turning a panic into an error.
func isolate(call func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicToError(rec)
		}
	}()

	return call()
}

func panicToError(rec interface{}) error {
	if err, ok := rec.(error); ok {
		return err
	}

	return fmt.Errorf("%v", rec)
}

// dependencyContext returns the context bounding a call to a dependency, according to the configured timeout.
func dependencyContext(r *http.Request) (context.Context, context.CancelFunc) {
	config := r.Context().Value(ctxKeyConfig).(Config)

	if config.Timeout > 0 {
		return context.WithTimeout(r.Context(), time.Duration(config.Timeout)*time.Millisecond)
	}

	return context.WithCancel(r.Context())
}

func recoverHandler() alice.Constructor {
	return func(Ͱ http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				if errors.Is(panicToError(rec), http.ErrAbortHandler) {
					panic(rec)
				}

				if done, _ := donewriter.WriterIsDone(w); done {
					hlog.
						FromRequest(r).
						Error().
						Err(panicToError(rec)).
						Msg("💥 panic after response was sent")
					return
				}

				sendFailure(w, r, "recover", panicToError(rec))
			}()

			Ͱ.ServeHTTP(w, r)
		})
	}
}

func installValidatorHandler() alice.Constructor {
	return func(Ͱ http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(context.WithValue(r.Context(), ctxKeyValidate, NewValidator()))

			Ͱ.ServeHTTP(w, r)
		})
	}
}

func logIncomingRequestHandler() alice.Constructor {
	return func(Ͱ http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hlog.
				FromRequest(r).
				Info().
				Object("request", util.RequestToLogObjectMarshaller(r)).
				Msg("⚙️ λ invoked")

			Ͱ.ServeHTTP(w, r)
		})
	}
}

func resolveConfigurationHandler(fs afero.Fs, configFactory ConfigFactory, lookupEnv LookupEnvFunc) alice.Constructor {
	return func(Ͱ http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			validate := r.Context().Value(ctxKeyValidate).(*validator.Validate)

			c, err := ResolveConfig(fs, ConfigFolder, configFactory, lookupEnv, validate)
			if err != nil {
				sendFailure(w, r, "resolve-configuration", err)
				return
			}

			hlog.
				FromRequest(r).
				Info().
				Object("configuration", c).
				Msg("🗒 configuration resolved")

			r = r.WithContext(context.WithValue(r.Context(), ctxKeyConfig, c))

			Ͱ.ServeHTTP(w, r)
		})
	}
}

func acquireIdentityHandler(identityFactory IdentityFactory) alice.Constructor {
	return func(Ͱ http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := identityFactory(r.Context())
			if err != nil {
				sendFailure(w, r, "acquire-identity", err)
				return
			}

			hlog.
				FromRequest(r).
				Info().
				Msg("🪪 managed identity acquired")

			r = r.WithContext(context.WithValue(r.Context(), ctxKeyIdentity, identity))

			Ͱ.ServeHTTP(w, r)
		})
	}
}

func buildClientsHandler() alice.Constructor {
	return func(Ͱ http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := r.Context().Value(ctxKeyIdentity).(Identity)
			config := r.Context().Value(ctxKeyConfig).(Config)

			secretStore, err := identity.SecretStore(config.KeyVaultURL)
			if err != nil {
				sendFailure(w, r, "build-clients", err)
				return
			}

			blobStore, err := identity.BlobStore(config.StorageAccountURL)
			if err != nil {
				sendFailure(w, r, "build-clients", err)
				return
			}

			hlog.
				FromRequest(r).
				Info().
				Str("keyVaultUrl", config.KeyVaultURL).
				Str("storageAccountUrl", config.StorageAccountURL).
				Msg("☑️ clients built")

			ctx := context.WithValue(r.Context(), ctxKeySecretStore, secretStore)
			ctx = context.WithValue(ctx, ctxKeyBlobStore, blobStore)
			r = r.WithContext(ctx)

			Ͱ.ServeHTTP(w, r)
		})
	}
}

func buildPayloadHandler() alice.Constructor {
	return func(Ͱ http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			config := r.Context().Value(ctxKeyConfig).(Config)

			message, err := util.RenderTemplatedString("message", config.Message, map[string]interface{}{
				"config": config,
			})
			if err != nil {
				sendFailure(w, r, "build-payload", err)
				return
			}

			payload := &ResponsePayload{
				Message:         message,
				Status:          StatusSuccess,
				Timestamp:       zerolog.TimestampFunc().UTC().Format(TimestampLayout),
				ManagedIdentity: ManagedIdentityEnabled,
				Environment:     config.Environment,
				FunctionAppName: config.FunctionAppName,
			}

			r = r.WithContext(context.WithValue(r.Context(), ctxKeyPayload, payload))

			Ͱ.ServeHTTP(w, r)
		})
	}
}

func fetchSecretHandler() alice.Constructor {
	return func(Ͱ http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := r.Context().Value(ctxKeySecretStore).(SecretStore)
			config := r.Context().Value(ctxKeyConfig).(Config)
			payload := r.Context().Value(ctxKeyPayload).(*ResponsePayload)

			ctx, cancel := dependencyContext(r)
			defer cancel()

			var value string
			err := isolate(func() (err error) {
				value, err = store.GetSecret(ctx, config.SecretName)
				return err
			})

			if err != nil {
				hlog.
					FromRequest(r).
					Warn().
					Str("secretName", config.SecretName).
					Err(err).
					Msg("⚠️ key vault access failed")

				payload.KeyVaultStatus = NotAccessible(err)
			} else {
				hlog.
					FromRequest(r).
					Info().
					Str("secretName", config.SecretName).
					Msg("🔑 secret retrieved")

				payload.SecretRetrieved = SecretRetrieved
				payload.SecretValue = PreviewSecret(value)
			}

			Ͱ.ServeHTTP(w, r)
		})
	}
}

func listContainersHandler() alice.Constructor {
	return func(Ͱ http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := r.Context().Value(ctxKeyBlobStore).(BlobStore)
			payload := r.Context().Value(ctxKeyPayload).(*ResponsePayload)

			ctx, cancel := dependencyContext(r)
			defer cancel()

			var containers []string
			err := isolate(func() (err error) {
				containers, err = store.ListContainers(ctx)
				return err
			})

			if err != nil {
				hlog.
					FromRequest(r).
					Warn().
					Err(err).
					Msg("⚠️ storage access failed")

				payload.StorageStatus = NotAccessible(err)
			} else {
				count := len(containers)

				hlog.
					FromRequest(r).
					Info().
					Int("containers", count).
					Msg("🗄 containers listed")

				payload.StorageContainersCount = &count
				payload.StorageStatus = StorageAccessible
			}

			Ͱ.ServeHTTP(w, r)
		})
	}
}

func respondHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := r.Context().Value(ctxKeyPayload).(*ResponsePayload)

		if err := writeJSON(w, http.StatusOK, payload); err != nil {
			sendFailure(w, r, "respond", err)
			return
		}

		hlog.
			FromRequest(r).
			Info().
			Object("payload", payload).
			Msg("👍 invocation succeeded")
	})
}
