package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ccamel/managedfn/internal/util"
	"github.com/ccamel/managedfn/internal/verifier"
	"github.com/rs/zerolog"
)

type cli struct {
	URL           string        `arg:"" name:"function-app-url" help:"Base URL of the function app (e.g. https://my-function-app.azurewebsites.net)."`
	Expect        string        `default:"${default_expectation}" help:"Expression the function response shall satisfy (body and statusCode are available)."`
	HealthTimeout time.Duration `default:"10s" help:"Timeout of the health probe."`
	Timeout       time.Duration `default:"30s" help:"Timeout of the function call."`
	Verbose       bool          `short:"v" help:"Log the HTTP exchanges on stderr."`
}

func usage(stdout io.Writer) {
	_, _ = fmt.Fprintln(stdout, "Usage: verify <function-app-url>")
	_, _ = fmt.Fprintln(stdout, "Example: verify https://my-function-app.azurewebsites.net")
}

// run verifies the function app designated by args, returning the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var c cli

	exited := false

	parser, err := kong.New(&c,
		kong.Name("verify"),
		kong.Description("Smoke test a deployed function app."),
		kong.Writers(stdout, stderr),
		kong.Vars{"default_expectation": verifier.DefaultExpectation},
		kong.Exit(func(int) { exited = true }),
	)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}

	_, err = parser.Parse(args)
	if exited {
		// help was requested, the function has not been checked
		usage(stdout)

		return 1
	}

	if err != nil {
		var parseErr *kong.ParseError
		if errors.As(err, &parseErr) {
			_, _ = fmt.Fprintln(stdout, err)
		}

		usage(stdout)

		return 1
	}

	level := zerolog.WarnLevel
	if c.Verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()
	ctx = logger.WithContext(ctx)

	v, err := verifier.New(c.URL, stdout)
	if err != nil {
		_, _ = fmt.Fprintln(stdout, err)
		return 1
	}

	if c.Expect != verifier.DefaultExpectation {
		program, err := util.CompilePredicateExpression(c.Expect)
		if err != nil {
			_, _ = fmt.Fprintf(stdout, "invalid expectation: %s\n", err)
			return 1
		}

		v.Expectation = program
	}

	v.HealthTimeout = c.HealthTimeout
	v.FunctionTimeout = c.Timeout

	return v.Run(ctx).ExitCode()
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
