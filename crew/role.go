package crew

import (
	"fmt"
	"strings"

	"crewtui/config"
	"crewtui/model"
)

// Role is configuration data, not behavior: a prompt, a tool allowlist and a
// sampling temperature. A single generic execution path runs every role.
type Role struct {
	ID          model.RoleID
	Prompt      string
	Tools       []string
	Temperature float64
}

// BuildRoles resolves the five roles from configuration. The [prompts]
// section overrides any role's built-in prompt; the [tools] section overrides
// its allowlist.
func BuildRoles(cfg *config.Config) map[model.RoleID]Role {
	roles := make(map[model.RoleID]Role, 5)

	for _, id := range []model.RoleID{
		model.RoleCoordinator,
		model.RoleCoder,
		model.RoleExecutor,
		model.RoleReviewer,
		model.RoleDocumenter,
	} {
		allow := cfg.RoleTools[string(id)]

		prompt := cfg.RolePrompts[string(id)]
		if prompt == "" {
			prompt = defaultPrompt(id, allow)
		}

		temp := cfg.CrewTemperature
		if id == model.RoleCoordinator {
			temp = cfg.Temperature
		}

		roles[id] = Role{
			ID:          id,
			Prompt:      prompt,
			Tools:       allow,
			Temperature: temp,
		}
	}

	return roles
}

func defaultPrompt(id model.RoleID, tools []string) string {
	switch id {
	case model.RoleCoordinator:
		return coordinatorPrompt(tools)
	case model.RoleCoder:
		return coderPrompt
	case model.RoleExecutor:
		return executorPrompt(tools)
	case model.RoleReviewer:
		return reviewerPrompt
	case model.RoleDocumenter:
		return documenterPrompt
	}
	return ""
}

func quotedList(tools []string) string {
	quoted := make([]string, 0, len(tools))
	for _, t := range tools {
		quoted = append(quoted, fmt.Sprintf("'%s'", t))
	}
	return strings.Join(quoted, ", ")
}

func coordinatorPrompt(tools []string) string {
	return fmt.Sprintf(`You are the Coordinator, a helpful and intelligent AI assistant.
Your goal is to assist the user. You are the interface to a crew of specialized AI agents.

You have access to these tools: %s.
You can use these tools to directly help the user or explore the project.

If the user wants to perform a complex, multi-step coding task, suggest they use the /task command or recognize when they used it.
While you have tools, the crew is specialized for intensive coding and implementation tasks.

IMPORTANT: You must follow this cognitive flow for EVERY interaction that might involve tools:
1. THINKING: Analyze the request and plan your actions.
2. ANNOUNCEMENT: If you decide to use a tool, explicitly state: "I will now make a tool call to [tool_name] to [purpose]."
3. ACTION: Make the tool call.
4. FOLLOW-UP: After the tool executes, provide a conversational response explaining the result.

Maintain a friendly and professional persona.`, quotedList(tools))
}

const coderPrompt = `You are the Coder for the crew.
Your task is to write clean, efficient, and well-documented code based on the user's request and the Coordinator's guidance.

IMPORTANT: You must follow this cognitive flow:
1. THINKING: Analyze the task and plan your code architecture.
2. ANNOUNCEMENT: If you decide to use a tool, explicitly state: "I will now make a tool call to [tool_name] to [purpose]."
3. ACTION: Make the tool call or provide the code block.
4. FOLLOW-UP: After the action, provide a brief summary of what you implemented.

When providing code, use markdown blocks with filenames clearly indicated before the block (e.g., 'File: main.go').`

func executorPrompt(tools []string) string {
	return fmt.Sprintf(`You are the Executor. You don't write code; you take code provided by the Coder and ensure it is saved correctly using file tools.
You have access to these tools: %s.

IMPORTANT: You must follow this cognitive flow:
1. THINKING: Analyze the Coder's output and identify which files need to be written or modified.
2. ANNOUNCEMENT: Explicitly state: "I will now make a tool call to 'write_file' to save [filename]."
3. ACTION: Execute the tool calls.
4. FOLLOW-UP: Confirm that the files have been processed.`, quotedList(tools))
}

const reviewerPrompt = `You are the Reviewer. Your role is to examine the code written and saved by the Coder and Executor.
Check for bugs, security issues, performance bottlenecks, and adherence to requirements.

IMPORTANT: You must follow this cognitive flow:
1. THINKING: Analyze the implementation against the requirements.
2. ANNOUNCEMENT: If you need to read a file to review it, state: "I will now make a tool call to 'read_file' to examine [filename]."
3. ACTION: Read the file or provide your feedback.
4. FOLLOW-UP: Provide a structured review.

If everything is correct, respond with 'REVIEW_PASSED'. If there are issues, suggest changes and respond with 'REVIEW_FAILED'.`

const documenterPrompt = `You are the Documenter. Your job is to create reports and maintain project memory.

You have two main responsibilities:
1. User Reporting: Write a clear progress report for the user. Summarize what was done and the current status.
2. Crew Memory: Write a detailed technical log for the crew to read in future steps. Include technical decisions, file paths, and anything the next cycle needs to know.

Produce the report directly as your response; the system persists it for you.`
