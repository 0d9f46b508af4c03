package todo

import (
	"fmt"
	"path/filepath"
	"testing"
)

func largeFile(n int) *File {
	f := NewFile()
	for i := 0; i < n; i++ {
		task := sampleTask(fmt.Sprintf("T%04d", i), int64((n-i)*10000))
		if i%3 == 0 {
			task.SetCompleted(true)
		}
		f.Tasks = append(f.Tasks, task)
	}
	return f
}

// BenchmarkLoadLarge benchmarks task file loading with 500 tasks.
func BenchmarkLoadLarge(b *testing.B) {
	path := filepath.Join(b.TempDir(), "tasks.json")
	if err := largeFile(500).Save(path); err != nil {
		b.Fatalf("Save failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Load(path); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
	}
}

// BenchmarkUserTasks benchmarks extracting and sorting one user's list.
func BenchmarkUserTasks(b *testing.B) {
	f := largeFile(500)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = f.UserTasks("alice")
	}
}

// BenchmarkValidateSchema benchmarks validation against the built-in schema.
func BenchmarkValidateSchema(b *testing.B) {
	f := largeFile(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if r := f.Validate(ValidationOptions{}); !r.Valid {
			b.Fatalf("Validate failed: %v", r.Errors)
		}
	}
}
