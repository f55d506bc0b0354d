package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"goa.design/clue/log"
)

//go:embed action_catalogue.json
var catalogueJSON []byte

// catalogueSchema constrains the embedded catalogue file. The file is
// validated before decoding so a malformed catalogue fails the boot instead
// of seeding partial entries.
const catalogueSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["actions"],
	"properties": {
		"actions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["action_name", "class_name", "method_name", "domain", "api"],
				"properties": {
					"action_name": {"type": "string", "minLength": 1},
					"class_name": {"type": "string", "minLength": 1},
					"method_name": {"type": "string", "minLength": 1},
					"domain": {"type": "string", "minLength": 1},
					"api": {
						"type": "object",
						"required": ["endpoint", "http_method"],
						"properties": {
							"endpoint": {"type": "string", "minLength": 1},
							"http_method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"]}
						}
					},
					"description": {"type": "string"},
					"parameters": {"type": "object"},
					"returns": {"type": "object"}
				}
			}
		}
	}
}`

// catalogueFile is the wire shape of action_catalogue.json.
type catalogueFile struct {
	Actions []catalogueEntry `json:"actions"`
}

type catalogueEntry struct {
	ActionName  string         `json:"action_name"`
	ClassName   string         `json:"class_name"`
	MethodName  string         `json:"method_name"`
	Domain      string         `json:"domain"`
	API         catalogueAPI   `json:"api"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Returns     map[string]any `json:"returns"`
}

type catalogueAPI struct {
	Endpoint   string `json:"endpoint"`
	HTTPMethod string `json:"http_method"`
}

// ActionStore is the slice of the action repository seeding needs.
type ActionStore interface {
	// GetActionByName returns ErrNotFound when no entry has the name.
	GetActionByName(ctx context.Context, name string) (*Action, error)
	InsertAction(ctx context.Context, a *Action) error
}

// Stats reports what a seeding pass did.
type Stats struct {
	Seeded  int
	Skipped int
}

// Load parses and validates the embedded catalogue.
func Load() ([]*Action, error) {
	return parseCatalogue(catalogueJSON)
}

// Seed inserts every catalogue entry the store does not already have.
// Existing entries are left untouched so operators can deactivate or retag
// actions without the next boot reverting them.
func Seed(ctx context.Context, store ActionStore) (Stats, error) {
	var stats Stats
	actions, err := Load()
	if err != nil {
		return stats, err
	}
	for _, a := range actions {
		if _, err := store.GetActionByName(ctx, a.ActionName); err == nil {
			stats.Skipped++
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return stats, fmt.Errorf("look up action %s: %w", a.ActionName, err)
		}
		now := time.Now().UTC()
		a.CreatedAt = now
		a.UpdatedAt = now
		if err := store.InsertAction(ctx, a); err != nil {
			return stats, fmt.Errorf("insert action %s: %w", a.ActionName, err)
		}
		stats.Seeded++
		log.Debugf(ctx, "seeded action %s", a.ActionName)
	}
	log.Printf(ctx, "action catalog seeded: %d new, %d existing", stats.Seeded, stats.Skipped)
	return stats, nil
}

func parseCatalogue(data []byte) ([]*Action, error) {
	if err := validateCatalogue(data); err != nil {
		return nil, err
	}
	var file catalogueFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}
	actions := make([]*Action, 0, len(file.Actions))
	for _, e := range file.Actions {
		actions = append(actions, &Action{
			ActionName:  e.ActionName,
			DisplayName: displayName(e.ActionName),
			ClassName:   e.ClassName,
			MethodName:  e.MethodName,
			Domain:      e.Domain,
			Endpoint:    e.API.Endpoint,
			HTTPMethod:  e.API.HTTPMethod,
			Description: e.Description,
			Parameters:  orEmptyMap(e.Parameters),
			Returns:     orEmptyMap(e.Returns),
			Category:    e.Domain,
			Tags:        deriveTags(e.ActionName, e.Domain, e.Description),
			IsActive:    true,
		})
	}
	return actions, nil
}

// validateCatalogue checks data against the catalogue schema.
func validateCatalogue(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal catalogue: %w", err)
	}
	var schemaDoc any
	if err := json.Unmarshal([]byte(catalogueSchema), &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("catalogue.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("catalogue.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("validate catalogue: %w", err)
	}
	return nil
}

// deriveTags classifies an entry from its metadata. Descriptions that
// mention LLM or AI mark AI powered actions, the domain decides a maturity
// tag and well known substrings of the action name add capability tags.
func deriveTags(name, domain, description string) []string {
	tags := []string{}
	if strings.Contains(description, "LLM") || strings.Contains(description, "AI") {
		tags = append(tags, "AI-Powered")
	}
	switch domain {
	case "Carrier Follow Up":
		tags = append(tags, "Popular")
	case "Shipment Update":
		tags = append(tags, "Stable")
	case "Escalation":
		tags = append(tags, "Essential")
	}
	if strings.Contains(name, "email") {
		tags = append(tags, "Communication")
	}
	if strings.Contains(name, "load") {
		tags = append(tags, "Logistics")
	}
	if strings.Contains(name, "escalation") {
		tags = append(tags, "Workflow")
	}
	return tags
}

// displayName turns a snake_case action name into a human readable title.
func displayName(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		w = strings.ToLower(w)
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
