package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"goa.design/clue/log"

	"github.com/flowplane/flowplane/llm"
	"github.com/flowplane/flowplane/workflow"
)

// SuggestMetadata proposes a title and description for a draft definition.
// The model's suggestion is preferred; when the call fails or the reply is
// missing either field, both are derived from the node labels instead.
func (a *Agent) SuggestMetadata(ctx context.Context, def workflow.Definition) (string, string) {
	serialized, err := json.MarshalIndent(def, "", "  ")
	if err == nil {
		out, cerr := llm.CompleteJSON(ctx, a.llm, suggestPrompt, []llm.Message{
			{Role: llm.RoleUser, Content: string(serialized)},
		})
		if cerr != nil {
			log.Warnf(ctx, "metadata suggestion failed: %s", cerr)
		} else {
			title, _ := out["title"].(string)
			description, _ := out["description"].(string)
			title = strings.TrimSpace(title)
			description = strings.TrimSpace(description)
			if title != "" && description != "" {
				return title, description
			}
			log.Debugf(ctx, "metadata suggestion reply unusable, using fallback")
		}
	}
	return fallbackMetadata(def)
}

// fallbackMetadata derives metadata from the graph alone: the first step
// names the workflow and the description enumerates the steps.
func fallbackMetadata(def workflow.Definition) (string, string) {
	steps := make([]string, 0, len(def.Nodes))
	for _, n := range def.Nodes {
		steps = append(steps, stepLabel(n))
	}
	if len(steps) == 0 {
		return "New Workflow", "Automated workflow."
	}
	title := steps[0] + " Workflow"
	description := fmt.Sprintf("Automated workflow with %d steps: %s.", len(steps), strings.Join(steps, ", "))
	return title, description
}

func stepLabel(n workflow.Node) string {
	if l := n.Label(); l != "" {
		return l
	}
	if a := n.ActionName(); a != "" {
		return a
	}
	return n.Type
}
