// Package prompts composes the prompt text fed to the agent CLI over stdin,
// combining a per-type template (on disk or built-in default) with a
// task-context block describing the concrete job.
package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conductorhq/agentorch/internal/task"
)

var defaultPrompts = map[task.Type]string{
	task.TypeResearch: `# Research Task

You are a research agent. Your job is to thoroughly research the given topic and produce a comprehensive report.

## Instructions
1. Use web search and browser tools to gather information
2. Cite all sources with URLs
3. Organize findings into clear sections
4. Save the final report as markdown in the output directory
5. Include a summary at the beginning
`,
	task.TypeAnalysis: `# Analysis Task

You are a data analysis agent. Your job is to analyze the given data or topic and produce insights.

## Instructions
1. Gather relevant data using available tools
2. Analyze patterns and trends
3. Create visualizations if appropriate
4. Save the analysis report as markdown in the output directory
5. Include key findings at the beginning
`,
	task.TypeDocument: `# Document Generation Task

You are a document generation agent. Your job is to create professional documents based on the given requirements.

## Instructions
1. Follow the provided template or format requirements
2. Research any needed information
3. Generate clear, well-structured content
4. Save the document in the output directory
5. Review for accuracy and formatting
`,
}

// Builder loads per-type templates from promptsDir, falling back to the
// built-in defaults when no template file exists.
type Builder struct {
	promptsDir string
}

func NewBuilder(promptsDir string) *Builder {
	return &Builder{promptsDir: promptsDir}
}

// Build returns the full prompt text to send to the agent for t.
func (b *Builder) Build(t *task.Task) string {
	base := b.loadTemplate(t.Type)
	return fmt.Sprintf("%s\n\n%s", base, taskContext(t))
}

func (b *Builder) loadTemplate(taskType task.Type) string {
	if b.promptsDir != "" {
		path := filepath.Join(b.promptsDir, string(taskType)+".md")
		if data, err := os.ReadFile(path); err == nil {
			return string(data)
		}
	}
	if tmpl, ok := defaultPrompts[taskType]; ok {
		return tmpl
	}
	return defaultPrompts[task.TypeResearch]
}

func taskContext(t *task.Task) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "## Task Details\n")
	fmt.Fprintf(&buf, "- **Title**: %s\n", t.Title)
	fmt.Fprintf(&buf, "- **Description**: %s\n", t.Description)
	fmt.Fprintf(&buf, "- **Output Directory**: %s\n", t.OutputsPath)

	if len(t.Config) > 0 {
		if encoded, err := json.MarshalIndent(t.Config, "", "  "); err == nil {
			fmt.Fprintf(&buf, "\n## Configuration\n```json\n%s\n```\n", encoded)
		}
	}

	if len(t.AttachmentRefs) > 0 {
		fmt.Fprintf(&buf, "\n## Attachments\n")
		for _, ref := range t.AttachmentRefs {
			fmt.Fprintf(&buf, "- %s\n", ref)
		}
	}

	if t.Delivery != nil {
		fmt.Fprintf(&buf, "\n## Delivery Instructions\n")
		if t.Delivery.Email != "" {
			fmt.Fprintf(&buf, "- Send notification to: %s\n", t.Delivery.Email)
		}
		if t.Delivery.Storage != "" {
			folder := t.Delivery.Folder
			if folder == "" {
				folder = "DeepAgent/Results"
			}
			fmt.Fprintf(&buf, "- Upload to %s: %s\n", t.Delivery.Storage, folder)
		}
	}

	return buf.String()
}
