package trace

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/inference-sim/pipeline-sim/sim"
)

//go:embed record.schema.json
var recordSchemaJSON string

// recordSchemaURL names the in-memory resource; nothing is fetched.
const recordSchemaURL = "https://pipeline-sim.local/record.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func recordSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(recordSchemaURL, strings.NewReader(recordSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(recordSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// ValidationFailure identifies one record that does not match the schema.
type ValidationFailure struct {
	Index int
	Err   error
}

// ValidationError lists every failing record of a stream.
type ValidationError struct {
	Total    int
	Failures []ValidationFailure
}

func (e *ValidationError) Error() string {
	lines := []string{fmt.Sprintf("trace records: total=%d failed=%d", e.Total, len(e.Failures))}
	for _, f := range e.Failures {
		lines = append(lines, fmt.Sprintf("- record %d: %v", f.Index, f.Err))
	}
	return strings.Join(lines, "\n")
}

// ValidateRecord checks one record against the embedded schema.
func ValidateRecord(rec sim.Fields) error {
	s, err := recordSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	var payload any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return s.Validate(payload)
}

// ValidateRecords checks every record and returns a *ValidationError listing
// the failures, or nil when all records are valid.
func ValidateRecords(records []sim.Fields) error {
	if _, err := recordSchema(); err != nil {
		return err
	}
	verr := &ValidationError{Total: len(records)}
	for i, rec := range records {
		if err := ValidateRecord(rec); err != nil {
			verr.Failures = append(verr.Failures, ValidationFailure{Index: i, Err: err})
		}
	}
	if len(verr.Failures) > 0 {
		return verr
	}
	return nil
}
