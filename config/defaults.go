package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/crewtui",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Providers: ProvidersConfig{
			Primary: "anthropic",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o",
		},
		OpenRouter: OpenRouterConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "deepseek/deepseek-chat",
		},
		Ollama: OllamaConfig{
			Host:       "http://127.0.0.1:11434",
			ChatModel:  "llama3.2:latest",
			CoderModel: "llama3.2:latest",
		},
		Behavior: BehaviorConfig{
			Temperature:        0.7,
			CrewTemperature:    0.2,
			ToolConfirmation:   "dangerous",
			MaxCycles:          3,
			RetryAttempts:      2,
			ToolTimeoutSecs:    30,
			AllowedDirectories: []string{"."},
		},
		Tools: DefaultRoleTools(),
	}
}

// DefaultRoleTools returns the per-role tool allowlists. The coordinator can
// do light exploration on its own; the coder only reads and analyzes, the
// executor owns every state-mutating tool, the reviewer reads, and the
// documenter gets no direct tools (its artifacts go through the engine).
func DefaultRoleTools() map[string][]string {
	return map[string][]string{
		"coordinator": {
			"read_file", "write_file", "list_directory", "delete_file",
			"run_command", "run_code", "search_in_files", "move_file",
			"copy_file", "append_to_file", "get_file_info",
			"get_project_structure", "analyze_code", "find_references",
			"save_memory", "recall_memory", "add_to_context",
			"web_search", "fetch_url",
		},
		"coder": {
			"read_file", "list_directory", "get_project_structure",
			"search_in_files", "analyze_code", "find_references",
			"get_file_info", "recall_memory",
		},
		"executor": {
			"write_file", "delete_file", "run_command", "run_code",
			"move_file", "copy_file", "append_to_file", "list_directory",
			"read_file",
		},
		"reviewer": {
			"read_file", "list_directory", "analyze_code", "get_file_info",
		},
		"documenter": {},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# crewtui System Configuration
# Location: ~/.config/crewtui/settings.toml
# This file uses TOML format: https://toml.io

# Directory where sessions, memory and user config are stored
data_directory = "~/.local/share/crewtui"
`
}

func GenerateUserConfigTemplate() string {
	return `# crewtui User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

[providers]
# Primary chat provider: anthropic | openai | openrouter
# Ollama is always configured as the local fallback.
# API keys come from the environment:
#   ANTHROPIC_API_KEY, OPENAI_API_KEY, OPENROUTER_API_KEY
primary = "anthropic"

[anthropic]
model = "claude-sonnet-4-20250514"

[openai]
model = "gpt-4o"

[openrouter]
base_url = "https://openrouter.ai/api/v1"
model = "deepseek/deepseek-chat"

[ollama]
host = "http://127.0.0.1:11434"
chat_model = "llama3.2:latest"
# Separate model for the coder role when running on Ollama
coder_model = "llama3.2:latest"

[behavior]
# Sampling temperature for the coordinator
temperature = 0.7
# Lower temperature for the crew roles
crew_temperature = 0.2
# Tool confirmation policy: auto | dangerous | all
tool_confirmation = "dangerous"
# Maximum coder -> executor -> reviewer cycles per task
max_cycles = 3
# Provider retry attempts before fallback
retry_attempts = 2
# Per-tool execution timeout in seconds
tool_timeout_secs = 30
# Directories file tools may touch (relative paths resolve from the cwd)
allowed_directories = ["."]

# Per-role tool allowlists. Uncomment to override the defaults.
# [tools]
# coder = ["read_file", "list_directory"]

# Per-role system prompt overrides.
# [prompts]
# reviewer = "You are a strict reviewer..."

[mcp]
# Route tool calls through an external MCP server instead of the built-in
# implementations. The command is launched once and reused across calls.
enabled = false
# command = "crewtui-mcp"
# args = []
`
}
