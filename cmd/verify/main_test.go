package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ccamel/managedfn/internal/verifier"
	. "github.com/smartystreets/goconvey/convey"
)

func functionApp(c C, body string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(verifier.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc(verifier.FunctionPath, func(w http.ResponseWriter, r *http.Request) {
		c.So(r.Method, ShouldEqual, http.MethodGet)
		c.So(r.URL.Path, ShouldEqual, verifier.FunctionPath)
		_, _ = io.WriteString(w, body)
	})

	return httptest.NewServer(mux)
}

func TestRun(t *testing.T) {
	Convey("Considering the verify command", t, func(c C) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		cases := []struct {
			name string
			args []string
		}{
			{name: "no argument", args: []string{}},
			{name: "too many arguments", args: []string{"https://a.azurewebsites.net", "https://b.azurewebsites.net"}},
			{name: "the help flag", args: []string{"--help"}},
			{name: "the help flag and an URL", args: []string{"--help", "https://a.azurewebsites.net"}},
		}
		for n, tc := range cases {
			Convey(fmt.Sprintf("When running it with %s (case %d)", tc.name, n), func() {
				code := run(context.Background(), tc.args, stdout, stderr)

				Convey("Then the usage shall be printed and the exit code shall be 1", func() {
					So(code, ShouldEqual, 1)
					So(stdout.String(), ShouldContainSubstring, "Usage: verify <function-app-url>")
				})
			})
		}

		Convey("Given a function app answering successfully, with an unhealthy host", func() {
			server := functionApp(c, `{"message": "hello", "status": "success", "managed_identity": "enabled"}`)
			defer server.Close()

			Convey("When running it against the URL with a trailing slash", func() {
				code := run(context.Background(), []string{server.URL + "/"}, stdout, stderr)

				Convey("Then the exit code shall be 0", func() {
					So(code, ShouldEqual, 0)
					So(stdout.String(), ShouldContainSubstring, "⚠️ Health check returned status 503")
					So(stdout.String(), ShouldContainSubstring, "🎉 All tests passed!")
				})
			})

			Convey("When running it with an unsatisfied expectation", func() {
				code := run(context.Background(), []string{"--expect", `body.message == "bye"`, server.URL}, stdout, stderr)

				Convey("Then the exit code shall be 1", func() {
					So(code, ShouldEqual, 1)
					So(stdout.String(), ShouldContainSubstring, "❌ Function returned error status")
				})
			})

			Convey("When running it with an invalid expectation", func() {
				code := run(context.Background(), []string{"--expect", `body.message ==`, server.URL}, stdout, stderr)

				Convey("Then the exit code shall be 1", func() {
					So(code, ShouldEqual, 1)
					So(stdout.String(), ShouldContainSubstring, "invalid expectation")
				})
			})

			Convey("When running it verbosely", func() {
				code := run(context.Background(), []string{"-v", server.URL}, stdout, stderr)

				Convey("Then the HTTP exchanges shall be logged on stderr", func() {
					So(code, ShouldEqual, 0)
					So(stderr.String(), ShouldContainSubstring, verifier.FunctionPath)
				})
			})
		})

		Convey("Given a function app reporting an error", func() {
			server := functionApp(c, `{"message": "Function execution failed", "error": "boom", "status": "error"}`)
			defer server.Close()

			Convey("When running it", func() {
				code := run(context.Background(), []string{server.URL}, stdout, stderr)

				Convey("Then the exit code shall be 1", func() {
					So(code, ShouldEqual, 1)
					So(stdout.String(), ShouldContainSubstring, "❌ Missing required field: managed_identity")
					So(stdout.String(), ShouldContainSubstring, "❌ Some tests failed!")
				})
			})
		})
	})
}
