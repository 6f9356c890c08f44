package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amigocloud/amigocloud-go/pkg/amigocloud"
)

// newVerbCmd creates the command sending method requests to an API path.
func newVerbCmd(method string) *cobra.Command {
	var (
		bodyFile string
		params   map[string]string
		output   string
	)
	verb := strings.ToLower(method)

	cmd := &cobra.Command{
		Use:   verb + " PATH [flags]",
		Short: fmt.Sprintf("Send a %s request to an API path", method),
		Long: fmt.Sprintf(`Send a %[1]s request to PATH, relative to the API root or as an absolute URL.
Request bodies are read from a YAML or JSON file; a file holding several YAML
documents sends one request per document. Bodies may reference environment
variables as {{ .ENV.NAME }}.

Examples:
  amigo %[2]s /me/projects
  amigo %[2]s users/1234/projects -f project.yaml
  amigo %[2]s /me/projects -p search=roads -j`, method, verb),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if method == http.MethodGet {
				if bodyFile != "" {
					return fmt.Errorf("get requests do not take a body")
				}
				if output != "" {
					return download(ctx, cmd.OutOrStdout(), client, args[0], params, output)
				}
				resp, err := client.Get(ctx, args[0], params)
				if err != nil {
					return err
				}
				return printResponse(cmd.OutOrStdout(), resp)
			}

			bodies := []any{nil}
			if bodyFile != "" {
				bodies, err = ParseBodyFile(bodyFile)
				if err != nil {
					return err
				}
				if len(bodies) == 0 {
					return fmt.Errorf("no request body found in %s", bodyFile)
				}
			}
			for _, body := range bodies {
				normalized, err := normalizeYAMLValue(body)
				if err != nil {
					return err
				}
				resp, err := client.Do(ctx, amigocloud.Request{
					Method:      method,
					Path:        args[0],
					QueryParams: params,
					JSON:        normalized,
				})
				if err != nil {
					return err
				}
				if err := printResponse(cmd.OutOrStdout(), resp); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "Query parameters as key=value")
	if method == http.MethodGet {
		cmd.Flags().StringVarP(&output, "output", "o", "", "Write the raw response body to this file")
	} else {
		cmd.Flags().StringVarP(&bodyFile, "file", "f", "", "Request body file (YAML or JSON, - for stdin)")
	}
	return cmd
}

func download(ctx context.Context, w io.Writer, client *amigocloud.Client, path string, params map[string]string, output string) error {
	rc, err := client.Stream(ctx, amigocloud.Request{Method: http.MethodGet, Path: path, QueryParams: params})
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", output, err)
	}
	n, err := io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("unable to write %s: %w", output, err)
	}

	if jsonOutput {
		printJSON(w, map[string]any{"result": 1, "file": output, "bytes": n})
	} else {
		okLabel.Fprintf(w, "✓ Saved %d bytes to %s\n", n, output)
	}
	return nil
}

// normalizeYAMLValue converts the map[any]any values YAML produces for non-string keys
// into map[string]any so the value can be encoded as JSON.
func normalizeYAMLValue(input any) (any, error) {
	switch v := input.(type) {
	case map[any]any:
		result := make(map[string]any, len(v))
		for k, val := range v {
			var key string
			switch kk := k.(type) {
			case string:
				key = kk
			case int, int64, uint64, float64, bool:
				key = fmt.Sprint(kk)
			default:
				return nil, fmt.Errorf("unsupported map key: %v (type %T)", k, k)
			}
			converted, err := normalizeYAMLValue(val)
			if err != nil {
				return nil, err
			}
			result[key] = converted
		}
		return result, nil

	case map[string]any:
		for k, val := range v {
			converted, err := normalizeYAMLValue(val)
			if err != nil {
				return nil, err
			}
			v[k] = converted
		}
		return v, nil

	case []any:
		for i, elem := range v {
			converted, err := normalizeYAMLValue(elem)
			if err != nil {
				return nil, err
			}
			v[i] = converted
		}
		return v, nil

	default:
		return v, nil
	}
}

func init() {
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		rootCmd.AddCommand(newVerbCmd(m))
	}
}
