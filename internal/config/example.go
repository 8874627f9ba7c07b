package config

// Example returns a commented configuration file with every option at its
// default value.
func Example() string {
	return `# MyPM configuration
# Values can be overridden by MYPM_* environment variables or CLI flags.

# REST backend used by the dashboard, CLI and MCP tools
api_base_url = "http://localhost:8000"
request_timeout_seconds = 10

# debug, info, warn or error
log_level = "info"
# log_file = "~/.mypm/mypm.log"

# Dashboard re-read interval (0 disables it)
refresh_interval_seconds = 30

[server]
addr = ":8000"
# sqlite or neo4j
store = "sqlite"
db_path = ".mypm/mypm.db"
snapshot_path = ".mypm/snapshot.jsonl"

[neo4j]
# uri = "neo4j://localhost:7687"
# username = "neo4j"
# password = ""
database = "neo4j"
`
}
