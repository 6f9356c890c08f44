package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"

	"github.com/amigocloud/amigocloud-go/pkg/amigocloud"
)

// printValue prints v as YAML, or as JSON with --json.
func printValue(w io.Writer, v any) error {
	if jsonOutput {
		printJSON(w, v)
		return nil
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	fmt.Fprint(w, string(out))
	return nil
}

// printRaw prints a raw JSON document as YAML, or indented with --json.
func printRaw(w io.Writer, raw []byte) error {
	if jsonOutput {
		fmt.Fprintln(w, string(indentJSON(raw)))
		return nil
	}
	out, err := yaml.JSONToYAML(raw)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	fmt.Fprint(w, string(out))
	return nil
}

// printResponse prints a response body. Non-JSON bodies are printed as they are.
func printResponse(w io.Writer, resp *amigocloud.Response) error {
	if len(resp.Body) == 0 {
		if jsonOutput {
			printJSON(w, map[string]int{"result": 1, "status": resp.StatusCode})
		} else {
			okLabel.Fprintf(w, "✓ %d\n", resp.StatusCode)
		}
		return nil
	}
	if !resp.IsJSON() {
		fmt.Fprintln(w, resp.String())
		return nil
	}
	return printRaw(w, resp.Body)
}

func indentJSON(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return raw
	}
	return buf.Bytes()
}
