package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseBodyFile reads a request body file. The file holds one or more YAML documents
// (JSON is accepted as YAML) and may use {{ .ENV.VAR }} placeholders. Each document
// becomes one request body.
func ParseBodyFile(filename string) ([]any, error) {
	var data []byte
	var err error
	if filename == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(filename)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	data = replaceTabsWithSpaces(data)

	data, err = PreprocessBody(data, envFile)
	if err != nil {
		return nil, err
	}

	return ParseMultiYAMLFromBytes(data)
}

// ParseMultiYAMLFromBytes parses byte data containing multiple YAML documents.
// Empty documents are skipped.
func ParseMultiYAMLFromBytes(data []byte) ([]any, error) {
	content := strings.TrimSpace(string(data))
	if len(content) == 0 || strings.Trim(content, "- \n\t") == "" {
		return []any{}, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var result []any

	for {
		var doc any
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode YAML: %w", err)
		}
		if doc == nil {
			continue
		}
		if m, ok := doc.(map[string]any); ok && len(m) == 0 {
			continue
		}
		result = append(result, doc)
	}

	return result, nil
}

// replaceTabsWithSpaces converts leading tabs, which YAML rejects, into two spaces.
func replaceTabsWithSpaces(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		j := 0
		for j < len(line) && line[j] == '\t' {
			j++
		}
		if j > 0 {
			lines[i] = append(bytes.Repeat([]byte("  "), j), line[j:]...)
		}
	}
	return bytes.Join(lines, []byte("\n"))
}
