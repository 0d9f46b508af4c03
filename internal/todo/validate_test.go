package todo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWithBuiltinSchema(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*File)
		wantErr  string
		wantWarn string
	}{
		{name: "valid file", mutate: func(*File) {}},
		{
			name:    "bad schema version",
			mutate:  func(f *File) { f.SchemaVersion = 2 },
			wantErr: "schema_version",
		},
		{
			name:    "empty title",
			mutate:  func(f *File) { f.Tasks[0].Title = "" },
			wantErr: "tasks[0].title",
		},
		{
			name:    "unknown priority",
			mutate:  func(f *File) { f.Tasks[1].Priority = "critical" },
			wantErr: "tasks[1].priority",
		},
		{
			name:    "bad due date",
			mutate:  func(f *File) { f.Tasks[0].DueDate = "10/03/2025" },
			wantErr: "tasks[0].due_date",
		},
		{
			name:    "duplicate id",
			mutate:  func(f *File) { f.Tasks[1].ID = f.Tasks[0].ID },
			wantErr: "duplicate id",
		},
		{
			name:     "shared order index is a warning",
			mutate:   func(f *File) { f.Tasks[1].OrderIndex = f.Tasks[0].OrderIndex },
			wantWarn: "share order_index",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFile()
			f.Tasks = []Task{sampleTask("a", 10000), sampleTask("b", 20000)}
			tt.mutate(f)

			result := f.Validate(ValidationOptions{})
			assert.True(t, result.UsedSchema)
			if tt.wantErr == "" {
				assert.True(t, result.Valid, "errors: %v", result.Errors)
				assert.NoError(t, result.Err())
			} else {
				require.False(t, result.Valid)
				assert.Contains(t, result.Err().Error(), tt.wantErr)
			}
			if tt.wantWarn != "" {
				assert.Contains(t, strings.Join(result.Warnings, "\n"), tt.wantWarn)
			}
		})
	}
}

func TestValidateMinimal(t *testing.T) {
	tests := []struct {
		name    string
		file    *File
		wantErr bool
	}{
		{
			name: "valid file",
			file: &File{SchemaVersion: 1, Tasks: []Task{sampleTask("a", 1)}},
		},
		{
			name:    "missing schema_version",
			file:    &File{Tasks: []Task{sampleTask("a", 1)}},
			wantErr: true,
		},
		{
			name:    "missing tasks",
			file:    &File{SchemaVersion: 1},
			wantErr: true,
		},
		{
			name: "missing user",
			file: &File{SchemaVersion: 1, Tasks: []Task{func() Task {
				task := sampleTask("a", 1)
				task.UserID = ""
				return task
			}()}},
			wantErr: true,
		},
		{
			name: "empty status",
			file: &File{SchemaVersion: 1, Tasks: []Task{func() Task {
				task := sampleTask("a", 1)
				task.Status = ""
				return task
			}()}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.file.Validate(ValidationOptions{SkipSchema: true})
			if result.UsedSchema {
				t.Error("SkipSchema should not use the schema")
			}
			if result.Valid == tt.wantErr {
				t.Errorf("Valid: got %v, want %v (errors: %v)", result.Valid, !tt.wantErr, result.Errors)
			}
		})
	}
}

func TestValidateWithMissingSchemaFile(t *testing.T) {
	f := NewFile()
	f.Tasks = []Task{sampleTask("a", 1)}

	result := f.Validate(ValidationOptions{SchemaPath: filepath.Join(t.TempDir(), "nope.json")})
	assert.False(t, result.UsedSchema)
	assert.True(t, result.Valid)
	assert.Contains(t, strings.Join(result.Warnings, "\n"), "schema file not found")
}

func TestValidateWithCustomSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, SchemaJSON(), 0644))

	f := NewFile()
	f.Tasks = []Task{sampleTask("a", 1)}
	f.Tasks[0].Status = "blocked"

	result := f.Validate(ValidationOptions{SchemaPath: path})
	assert.True(t, result.UsedSchema)
	assert.False(t, result.Valid)
}
