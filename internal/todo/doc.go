// Package todo defines tasks and the task file format.
//
// The task file (tasks.json) holds the tasks of every user:
//
//	{
//	  "schema_version": 1,
//	  "tasks": [
//	    {
//	      "id": "3f0c...",
//	      "user_id": "alice",
//	      "title": "Renew passport",
//	      "completed": false,
//	      "order_index": 20000,
//	      "priority": "high",
//	      "status": "planned",
//	      "due_date": "2025-04-01",
//	      "created_at": "2025-03-01T09:00:00Z",
//	      "updated_at": "2025-03-01T09:00:00Z"
//	    }
//	  ]
//	}
//
// # Ordering
//
// A user's tasks display in ascending order_index; equal indexes fall back to
// the newest task first. Indexes are sparse and maintained by package
// orderindex.
//
// # Validation
//
// Validate checks the file against the built-in JSON Schema (draft 2020-12,
// embedded from schema.json) or a schema file given in ValidationOptions.
// When no schema can be compiled it falls back to minimal structural checks.
// Duplicate ids are always errors; shared order indexes are warnings.
//
// # Status Values
//
//   - "planned": not started
//   - "in_progress": being worked on
//   - "done": finished (Completed is true)
//   - "on_hold": paused
//   - "cancelled": dropped
//
// # File Format
//
// Files are written with 2-space indentation and a trailing newline, through
// a temporary file that is renamed into place.
package todo
