package cli

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"

	"github.com/joho/godotenv"
)

type TemplateContext struct {
	ENV map[string]string
}

var missingKeyRegex = regexp.MustCompile(`map has no entry for key "(.*?)"`)

// PreprocessBody replaces {{ .ENV.VAR }} placeholders in a request body with values
// from the environment or from envFile (".env" in the working directory when empty).
// Process variables win over the file.
func PreprocessBody(inputRaw []byte, envFile string) ([]byte, error) {
	if envFile == "" {
		envFile = ".env"
	}
	env := map[string]string{}
	if fileEnv, err := godotenv.Read(envFile); err == nil {
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	tmpl, err := template.New("body").Option("missingkey=error").Parse(string(inputRaw))
	if err != nil {
		return nil, fmt.Errorf("template error: %w", err)
	}

	var output bytes.Buffer
	if err := tmpl.Execute(&output, TemplateContext{ENV: env}); err != nil {
		if m := missingKeyRegex.FindStringSubmatch(err.Error()); len(m) == 2 {
			return nil, fmt.Errorf("missing environment variable: %s (set it in your shell or .env file)", m[1])
		}
		return nil, fmt.Errorf("template error: %w", err)
	}
	return output.Bytes(), nil
}
