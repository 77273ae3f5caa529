package util

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"github.com/spf13/afero"
)

const (
	HeaderContentType = "Content-Type"
	MediaTypeJSON     = "application/json"
)

// FuncMaps specify the common set of functions available in the context when considering expressions or templates
// evaluation.
func FuncMaps() map[string]interface{} {
	return map[string]interface{}{
		"urlPathEscape":  url.PathEscape,
		"urlQueryEscape": url.QueryEscape,
		"hasPrefix":      strings.HasPrefix,
	}
}

// RenderTemplatedString renders template according to the context provided.
func RenderTemplatedString(name, s string, ctx map[string]interface{}) (string, error) {
	t, err :=
		template.
			New(name).
			Funcs(FuncMaps()).
			Funcs(sprig.GenericFuncMap()).
			Option("missingkey=error").
			Parse(s)
	if err != nil {
		return "", err
	}

	out := &bytes.Buffer{}
	if err := t.Execute(out, ctx); err != nil {
		return "", err
	}

	return out.String(), nil
}

// CompilePredicateExpression compiles the given boolean expression.
func CompilePredicateExpression(predicate string) (*vm.Program, error) {
	return expr.Compile(predicate)
}

// EvaluatePredicateExpression evaluates the given expression according to the context provided.
// The expression shall gives a boolean value otherwise an error is returned.
func EvaluatePredicateExpression(predicate *vm.Program, ctx map[string]interface{}) (bool, error) {
	env := map[string]interface{}{}

	for name, fn := range FuncMaps() {
		env[name] = fn
	}

	for name, fn := range sprig.GenericFuncMap() {
		env[name] = fn
	}

	for name, v := range ctx {
		env[name] = v
	}

	out, err := expr.Run(predicate, env)
	if err != nil {
		return false, err
	}

	switch v := out.(type) {
	case bool:
		return v, nil
	default:
		return false,
			fmt.Errorf(
				"incorrect type %T returned when evaluating expression '%s'. Expected '%s'",
				out, predicate.Source.Content(),
				"boolean")
	}
}

// FindFilename search (recursively) for the given filename in the given root folder, returning the empty string
// if not found.
func FindFilename(fs afero.Fs, root, filename string) string {
	var configPath string

	fsutil := &afero.Afero{Fs: fs}
	_ = fsutil.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if configPath != "" {
			return filepath.SkipDir
		}

		if info.IsDir() {
			return nil
		}

		if info.Name() == filename {
			configPath = path
		}

		return nil
	})

	return configPath
}

// OpenResource opens the first resource with the given name found under root, returning `nil` if not found.
func OpenResource(fs afero.Fs, root, resourceName string) (io.ReadCloser, error) {
	configPath := FindFilename(fs, root, resourceName)

	if configPath == "" {
		return nil, nil
	}

	return fs.Open(configPath)
}
