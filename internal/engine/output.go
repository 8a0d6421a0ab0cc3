/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
)

const (
	customIDPrefix = "request-"
	maxLineSize    = 64 << 20
)

func customID(n int) string {
	return customIDPrefix + strconv.Itoa(n)
}

// parseCustomID returns n for "request-{n}" with 0 <= n < size.
func parseCustomID(id string, size int) (int, bool) {
	rest, ok := strings.CutPrefix(id, customIDPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 || n >= size || strconv.Itoa(n) != rest {
		return 0, false
	}
	return n, true
}

// forEachLine calls fn for every non-blank line of data with its 1-based line number.
func forEachLine(data []byte, fn func(lineNo int, line []byte) error) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func responseBody(line *openai.BatchOutputLine) (json.RawMessage, error) {
	if line.Response == nil || len(line.Response.Body) == 0 || string(line.Response.Body) == "null" {
		if line.Error != nil && line.Error.Message != "" {
			return nil, fmt.Errorf("%s has no response body: %s", line.CustomID, line.Error.Message)
		}
		return nil, fmt.Errorf("%s has no response body", line.CustomID)
	}
	return line.Response.Body, nil
}

// parseChunkOutput maps the output file of a chunk of the given size back to its
// requests. Every request-{n} of the chunk must be answered exactly once.
func parseChunkOutput(data []byte, size int) ([]json.RawMessage, error) {
	bodies := make([]json.RawMessage, size)
	seen := make([]bool, size)

	err := forEachLine(data, func(lineNo int, raw []byte) error {
		var line openai.BatchOutputLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("output line %d is not valid JSON: %w", lineNo, err)
		}
		n, ok := parseCustomID(line.CustomID, size)
		if !ok {
			return fmt.Errorf("output line %d has unexpected custom_id %q", lineNo, line.CustomID)
		}
		if seen[n] {
			return fmt.Errorf("duplicate output for %s", line.CustomID)
		}
		seen[n] = true
		body, err := responseBody(&line)
		if err != nil {
			return err
		}
		bodies[n] = body
		return nil
	})
	if err != nil {
		return nil, err
	}

	var missing []string
	for n, ok := range seen {
		if !ok {
			missing = append(missing, customID(n))
		}
	}
	if len(missing) > 0 {
		if len(missing) > 5 {
			missing = append(missing[:5], fmt.Sprintf("and %d more", len(missing)-5))
		}
		return nil, fmt.Errorf("no output for %s", strings.Join(missing, ", "))
	}
	return bodies, nil
}

// parseOutputBodies indexes the response bodies of an output file by custom_id. Lines
// without a body are skipped; a later line for the same custom_id wins.
func parseOutputBodies(data []byte) (map[string]json.RawMessage, error) {
	bodies := make(map[string]json.RawMessage)
	err := forEachLine(data, func(lineNo int, raw []byte) error {
		var line openai.BatchOutputLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("output line %d is not valid JSON: %w", lineNo, err)
		}
		if body, err := responseBody(&line); err == nil {
			bodies[line.CustomID] = body
		}
		return nil
	})
	return bodies, err
}

func parseInputLines(data []byte) ([]openai.BatchInputLine, error) {
	var lines []openai.BatchInputLine
	err := forEachLine(data, func(lineNo int, raw []byte) error {
		var line openai.BatchInputLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("input line %d is not valid JSON: %w", lineNo, err)
		}
		lines = append(lines, line)
		return nil
	})
	return lines, err
}
