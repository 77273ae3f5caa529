// Package verifier checks a deployed instance of the function over HTTP.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antonmedv/expr/vm"
	"github.com/ccamel/managedfn/internal/util"
	"github.com/motemen/go-loghttp"
	"github.com/tcnksm/go-httpstat"
)

const (
	// HealthPath is the status endpoint of the Functions host.
	HealthPath = "/admin/host/status"
	// FunctionPath is the route of the function.
	FunctionPath = "/api/HttpTriggerFunction"

	DefaultHealthTimeout   = 10 * time.Second
	DefaultFunctionTimeout = 30 * time.Second

	// DefaultExpectation is the predicate a response, holding all the required fields, shall satisfy.
	DefaultExpectation = `body.status == "success"`

	separator = "=================================================="
)

// RequiredFields lists the fields every function response shall hold.
var RequiredFields = []string{"message", "status", "managed_identity"}

// Verifier runs the checks against the function app found at BaseURL, reporting the progress to Out.
type Verifier struct {
	BaseURL         string
	Out             io.Writer
	HealthTimeout   time.Duration
	FunctionTimeout time.Duration
	// Expectation is evaluated against the decoded body (as `body`) and the status code (as `statusCode`).
	Expectation *vm.Program
	// Transport carries the requests, http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Result is the outcome of a run.
type Result struct {
	HealthOK bool
	HTTPOK   bool
}

// ExitCode returns the process exit code matching the result: only the function check matters.
func (r Result) ExitCode() int {
	if r.HTTPOK {
		return 0
	}

	return 1
}

// New returns a verifier with default timeouts and expectation. Trailing slashes of baseURL are ignored.
func New(baseURL string, out io.Writer) (*Verifier, error) {
	expectation, err := util.CompilePredicateExpression(DefaultExpectation)
	if err != nil {
		return nil, err
	}

	return &Verifier{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		Out:             out,
		HealthTimeout:   DefaultHealthTimeout,
		FunctionTimeout: DefaultFunctionTimeout,
		Expectation:     expectation,
	}, nil
}

func (v *Verifier) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(v.Out, format+"\n", args...)
}

// get issues a GET request, bounded by the given timeout. The body is fully read.
func (v *Verifier) get(ctx context.Context, path string, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result httpstat.Result

	request, err := http.NewRequestWithContext(httpstat.WithHTTPStat(ctx, &result), http.MethodGet, v.BaseURL+path, nil)
	if err != nil {
		return 0, nil, err
	}

	transport := v.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	client := http.Client{
		Transport: &loghttp.Transport{
			LogRequest:  util.HTTPRequestLogger(),
			LogResponse: util.HTTPResponseLogger(&result),
			Transport:   transport,
		},
	}

	response, err := client.Do(request)
	if err != nil {
		return 0, nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	result.End(time.Now())

	if err != nil {
		return response.StatusCode, nil, err
	}

	return response.StatusCode, body, nil
}

// CheckHealth probes the host status. The outcome is informational only.
func (v *Verifier) CheckHealth(ctx context.Context) bool {
	endpoint := v.BaseURL + HealthPath
	v.printf("Testing function health: %s", endpoint)

	code, _, err := v.get(ctx, HealthPath, v.HealthTimeout)
	if err != nil {
		v.printf("⚠️ Health check failed: %s", err)
		return false
	}

	v.printf("Health Status Code: %d", code)

	if code != http.StatusOK {
		v.printf("⚠️ Health check returned status %d", code)
		return false
	}

	v.printf("✅ Function app is healthy!")

	return true
}

// CheckFunction calls the function and checks the shape of its response.
func (v *Verifier) CheckFunction(ctx context.Context) bool {
	endpoint := v.BaseURL + FunctionPath
	v.printf("Testing HTTP function: %s", endpoint)

	code, body, err := v.get(ctx, FunctionPath, v.FunctionTimeout)
	if err != nil {
		v.printf("❌ Request failed: %s", err)
		return false
	}

	v.printf("Status Code: %d", code)

	if code != http.StatusOK {
		v.printf("❌ HTTP function failed with status %d", code)
		v.printf("Response: %s", body)
		return false
	}

	result := map[string]interface{}{}
	if err := json.Unmarshal(body, &result); err != nil {
		v.printf("❌ Invalid JSON response: %s", err)
		v.printf("Response: %s", body)
		return false
	}

	pretty, _ := json.MarshalIndent(result, "", "  ")
	v.printf("Response:")
	v.printf("%s", pretty)

	for _, field := range RequiredFields {
		if _, found := result[field]; !found {
			v.printf("❌ Missing required field: %s", field)
			return false
		}
	}

	expectation := v.Expectation
	if expectation == nil {
		if expectation, err = util.CompilePredicateExpression(DefaultExpectation); err != nil {
			v.printf("❌ Unable to compile expectation: %s", err)
			return false
		}
	}

	matched, err := util.EvaluatePredicateExpression(expectation, map[string]interface{}{
		"body":       result,
		"statusCode": code,
	})
	if err != nil {
		v.printf("❌ Unable to evaluate expectation: %s", err)
		return false
	}

	if !matched {
		v.printf("❌ Function returned error status")
		return false
	}

	v.printf("✅ HTTP function test passed!")

	return true
}

// Run performs the health probe then the function check, and prints a summary.
func (v *Verifier) Run(ctx context.Context) Result {
	v.printf("🧪 Testing Azure Function App: %s", v.BaseURL)
	v.printf(separator)

	result := Result{}
	result.HealthOK = v.CheckHealth(ctx)

	v.printf("")

	result.HTTPOK = v.CheckFunction(ctx)

	v.printf("")
	v.printf(separator)

	if result.HTTPOK {
		v.printf("🎉 All tests passed!")
	} else {
		v.printf("❌ Some tests failed!")
	}

	return result
}
