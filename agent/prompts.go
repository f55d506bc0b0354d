package agent

// routerPrompt asks the model for a bare intent token. Replies are
// normalized and anything unrecognized falls back to create.
const routerPrompt = `You are a workflow assistant. Analyze the user's message and determine their intent.

Possible intents:
- create: User wants to create a new workflow
- modify: User wants to modify existing workflow draft
- clarify: User is answering a clarification question
- complete: User wants to finalize/save the workflow

Return ONLY the intent word, nothing else.`

// createPromptFmt takes the catalog summary. The JSON skeleton in the prompt
// matches the canvas node shape so drafts render without translation.
const createPromptFmt = `You are a workflow builder assistant. Create a workflow based on the user's description.

Available actions:
%s

Return a JSON object with this structure:
{
    "nodes": [
        {
            "id": "node_1",
            "type": "action",
            "data": {
                "action_name": "action_name_from_catalog",
                "label": "Human readable label",
                "config": {}
            },
            "position": {"x": 100, "y": 100}
        }
    ],
    "edges": [
        {
            "id": "edge_1",
            "source": "node_1",
            "target": "node_2"
        }
    ]
}

Generate a logical workflow that accomplishes the user's goal.`

// modifyPromptFmt takes the serialized current draft and the user's request.
const modifyPromptFmt = `You are a workflow builder assistant. Modify the existing workflow based on the user's request.

Current workflow:
%s

User's modification request:
%s

Return the COMPLETE modified workflow as JSON with the same structure (nodes and edges).`

// clarifyPrompt runs over the full conversation history.
const clarifyPrompt = `You are a workflow builder assistant. Generate a helpful clarification question to better understand the user's needs. Be specific and actionable.`

// suggestPrompt asks for metadata; the serialized definition travels as the
// user message.
const suggestPrompt = `You are a workflow builder assistant. Suggest a concise title and a one sentence description for the workflow the user sends.

Return a JSON object: {"title": "...", "description": "..."}`

// User-visible replies. The canvas wording ("Save Workflow", "canvas") is
// part of the product copy and must match the frontend.
const (
	completeReply     = "Great! Your workflow is ready. Click 'Save Workflow' to finalize it."
	draftSummaryFmt   = "I've created a workflow with %d steps. Review it on the canvas and let me know if you'd like any changes!"
	needMoreInfoReply = "I need more information to create your workflow. What would you like it to do?"
)
