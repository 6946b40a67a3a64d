// Package importfile reads ISBN import files for the admin CLI.
//
// Two formats are accepted: a JSON manifest validated against manifest.schema.json,
// or plain text with one value per line where blank lines and lines starting with '#' are ignored.
package importfile

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed manifest.schema.json
var manifestSchema []byte

const manifestSchemaURL = "memory://schemas/isbn-import-manifest.json"

// ErrNoValues is returned when a file contains no values.
var ErrNoValues = errors.New("import file contains no isbns")

// Manifest is the parsed content of an import file. Values keep their raw spelling.
type Manifest struct {
	PrefixID *uuid.UUID
	Source   string
	Values   []string
}

type manifestDocument struct {
	PrefixID *string  `json:"prefixId"`
	Source   string   `json:"source"`
	ISBNs    []string `json:"isbns"`
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(manifestSchemaURL, bytes.NewReader(manifestSchema)); err != nil {
			compileErr = fmt.Errorf("register manifest schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(manifestSchemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile manifest schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// Parse detects the format and returns the manifest.
func Parse(data []byte) (Manifest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return parseJSON(trimmed)
	}
	return parseLines(trimmed)
}

func parseJSON(data []byte) (Manifest, error) {
	s, err := schema()
	if err != nil {
		return Manifest{}, err
	}

	var document any
	if err := json.Unmarshal(data, &document); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := s.Validate(document); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}

	var doc manifestDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}

	manifest := Manifest{Source: doc.Source, Values: doc.ISBNs}
	if doc.PrefixID != nil {
		id, err := uuid.Parse(*doc.PrefixID)
		if err != nil {
			return Manifest{}, fmt.Errorf("invalid prefixId: %w", err)
		}
		manifest.PrefixID = &id
	}
	return manifest, nil
}

func parseLines(data []byte) (Manifest, error) {
	var values []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		values = append(values, line)
	}
	if err := scanner.Err(); err != nil {
		return Manifest{}, fmt.Errorf("read import file: %w", err)
	}
	if len(values) == 0 {
		return Manifest{}, ErrNoValues
	}
	return Manifest{Values: values}, nil
}

// Chunk splits values into consecutive batches of at most size values.
func Chunk(values []string, size int) [][]string {
	if size <= 0 {
		size = len(values)
	}
	var out [][]string
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		out = append(out, values[start:end])
	}
	return out
}
