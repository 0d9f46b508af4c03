package todo

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nibzard/ordo/internal/utils"
)

//go:embed schema.json
var schemaJSON []byte

const embeddedSchemaURL = "https://github.com/nibzard/ordo/tasks.schema.json"

var embeddedSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(embeddedSchemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(embeddedSchemaURL)
})

// SchemaJSON returns the built-in task file schema.
func SchemaJSON() []byte {
	return bytes.Clone(schemaJSON)
}

// ValidationError represents a validation error with context.
type ValidationError struct {
	Path string // JSON path to the error location
	Err  error  // Underlying error
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidationOptions controls validation behavior.
type ValidationOptions struct {
	// SchemaPath overrides the built-in schema. If the file cannot be used,
	// validation falls back to minimal checks with a warning.
	SchemaPath string
	// SkipSchema runs the minimal checks only.
	SkipSchema bool
}

// ValidationResult contains validation results.
type ValidationResult struct {
	Valid      bool
	Errors     []error
	Warnings   []string
	UsedSchema bool // true if JSON Schema validation was performed
}

// Err joins the errors of an invalid result, or returns nil.
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid task file: %w", errors.Join(r.Errors...))
}

// Validate validates the file. Schema validation runs first; the checks that
// JSON Schema cannot express (duplicate ids, duplicate order indexes) always
// run afterwards.
func (f *File) Validate(opts ValidationOptions) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   make([]error, 0),
		Warnings: make([]string, 0),
	}

	if !opts.SkipSchema {
		schema, warn := loadSchema(opts.SchemaPath)
		if warn != "" {
			result.Warnings = append(result.Warnings, warn)
		}
		if schema != nil {
			result.UsedSchema = true
			validateWithSchema(f, schema, result)
		} else {
			result.Warnings = append(result.Warnings, "JSON Schema validation not available, using minimal checks")
		}
	}

	if !result.UsedSchema {
		f.validateMinimal(result)
	}
	f.validateUnique(result)

	return result
}

func loadSchema(path string) (*jsonschema.Schema, string) {
	if path == "" {
		schema, err := embeddedSchema()
		if err != nil {
			return nil, fmt.Sprintf("invalid built-in schema: %v", err)
		}
		return schema, ""
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Sprintf("invalid schema path: %v", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Sprintf("schema file not found: %s", absPath)
		}
		return nil, fmt.Sprintf("failed to read schema file: %v", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(absPath)
	if err != nil {
		return nil, fmt.Sprintf("invalid schema file: %v", err)
	}
	return schema, ""
}

// validateMinimal performs minimal validation without JSON Schema.
func (f *File) validateMinimal(result *ValidationResult) {
	if f.SchemaVersion != 1 {
		result.Valid = false
		result.Errors = append(result.Errors, &ValidationError{
			Path: "schema_version",
			Err:  fmt.Errorf("expected 1, got %d", f.SchemaVersion),
		})
	}

	if f.Tasks == nil {
		result.Valid = false
		result.Errors = append(result.Errors, &ValidationError{
			Path: "tasks",
			Err:  fmt.Errorf("missing required field"),
		})
		return
	}

	for i := range f.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		if err := validateTaskMinimal(&f.Tasks[i], path); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, err)
		}
	}
}

func validateTaskMinimal(task *Task, path string) *ValidationError {
	switch {
	case task.ID == "":
		return &ValidationError{Path: path + ".id", Err: fmt.Errorf("missing required field")}
	case task.UserID == "":
		return &ValidationError{Path: path + ".user_id", Err: fmt.Errorf("missing required field")}
	case task.Title == "":
		return &ValidationError{Path: path + ".title", Err: fmt.Errorf("missing required field")}
	}

	if _, err := ParsePriority(string(task.Priority)); err != nil || task.Priority == "" {
		return &ValidationError{Path: path + ".priority", Err: fmt.Errorf("invalid priority %q", task.Priority)}
	}
	if _, err := ParseStatus(string(task.Status)); err != nil || task.Status == "" {
		return &ValidationError{Path: path + ".status", Err: fmt.Errorf("invalid status %q", task.Status)}
	}

	for field, value := range map[string]string{"start_date": task.StartDate, "due_date": task.DueDate} {
		if value == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, value); err != nil {
			return &ValidationError{Path: path + "." + field, Err: fmt.Errorf("expected YYYY-MM-DD, got %q", value)}
		}
	}
	return nil
}

// validateUnique reports duplicate ids as errors and shared order indexes
// within a user as warnings (a rebalance clears them).
func (f *File) validateUnique(result *ValidationResult) {
	ids := make(map[string]int, len(f.Tasks))
	keys := make(map[string]map[int64]string)
	for i, t := range f.Tasks {
		if prev, ok := ids[t.UserID+"/"+t.ID]; ok && t.ID != "" {
			result.Valid = false
			result.Errors = append(result.Errors, &ValidationError{
				Path: fmt.Sprintf("tasks[%d].id", i),
				Err:  fmt.Errorf("duplicate id %q (also tasks[%d])", t.ID, prev),
			})
		}
		ids[t.UserID+"/"+t.ID] = i

		if keys[t.UserID] == nil {
			keys[t.UserID] = make(map[int64]string)
		}
		if other, ok := keys[t.UserID][t.OrderIndex]; ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("user %s: tasks %s and %s share order_index %d", t.UserID, other, t.ID, t.OrderIndex))
		}
		keys[t.UserID][t.OrderIndex] = t.ID
	}
}

func validateWithSchema(f *File, schema *jsonschema.Schema, result *ValidationResult) {
	// Marshal the file back to JSON for validation
	fileData, err := json.Marshal(f)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, &ValidationError{
			Err: fmt.Errorf("failed to marshal file for validation: %w", err),
		})
		return
	}

	var fileObj interface{}
	if err := json.Unmarshal(fileData, &fileObj); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, &ValidationError{
			Err: fmt.Errorf("failed to unmarshal file for validation: %w", err),
		})
		return
	}

	if err := schema.Validate(fileObj); err != nil {
		result.Valid = false
		appendSchemaErrors(result, err)
	}
}

func appendSchemaErrors(result *ValidationResult, err error) {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		result.Errors = append(result.Errors, err)
		return
	}
	collectSchemaErrors(result, ve)
}

func collectSchemaErrors(result *ValidationResult, err *jsonschema.ValidationError) {
	if len(err.Causes) == 0 {
		result.Errors = append(result.Errors, &ValidationError{
			Path: utils.JSONPointerToPath(err.InstanceLocation),
			Err:  fmt.Errorf("%s", err.Message),
		})
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(result, cause)
	}
}
