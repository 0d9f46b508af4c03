package config

// ExampleConfig returns an example configuration showing all available options.
func ExampleConfig() string {
	return `# ordo configuration file
# Values can be overridden by ORDO_* environment variables or CLI flags

# Whose tasks commands act on (defaults to $USER)
# user = "me"

# Task store: memory, file or dynamodb
store = "file"

# Task file (relative to project root, ~ expanded, or minio://bucket/key)
todo_file = "~/.ordo/tasks.json"

# Schema file (empty uses the embedded schema)
# schema_file = "tasks.schema.json"

# Log directory for serve request logs
log_dir = "~/.ordo/logs"

# HTTP listen address and default page size for serve
listen = "127.0.0.1:8080"
page_size = 50

# Log output
log_level = "info"
log_format = "text"
log_timestamps = false
log_caller = false

# Order key space. Smaller gaps rebalance more often.
[order]
gap = 10000
min_gap = 2
window = 20
leading_window = 10
leading_span = 10
max_window = 320

# DynamoDB store (store = "dynamodb")
[dynamodb]
table = "ordo-tasks"
# region = "us-east-1"
# endpoint = "http://localhost:8000"
# write_rate = 0  # transactions per second, 0 is unlimited

# S3-compatible endpoint for minio:// task files
[remote]
# endpoint = "localhost:9000"
# access_key = ""
# secret_key = ""
# region = ""
secure = true
`
}
