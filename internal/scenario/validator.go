// Package scenario implements the Scenario Validator: it parses a scenario
// JSON document, checks every structural and graph invariant, and produces
// an immutable, indexed Scenario. Validation is total — the first violation
// aborts the whole parse — and side-effect free.
package scenario

import (
	"encoding/json"
	"fmt"

	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/models"
	"github.com/google/uuid"
)

var allowedVariableTypes = map[string]models.VariableType{
	"string":  models.VarString,
	"number":  models.VarNumber,
	"boolean": models.VarBoolean,
}

// Validate parses and validates raw scenario JSON, returning an immutable,
// indexed Scenario or the first ValidationError encountered.
func Validate(raw []byte) (*models.Scenario, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, models.NewValidationError("invalid JSON: "+err.Error(), "")
	}
	return validateDocument(&doc)
}

func validateDocument(doc *document) (*models.Scenario, error) {
	// Pass 1: top-level fields and types.
	if doc.BotName == "" {
		return nil, models.NewValidationError("missing required field BotName", "BotName")
	}
	if !isValidUUID(doc.Start) {
		return nil, models.NewValidationError("Start must be a valid UUID", "Start")
	}
	if !isValidUUID(doc.Final) {
		return nil, models.NewValidationError("Final must be a valid UUID", "Final")
	}

	globalVars, err := parseGlobalVariables(doc.GlobalVariables)
	if err != nil {
		return nil, err
	}

	// Pass 2: per-block structural + parameter parse.
	blocks, err := parseBlocks(doc.Blocks)
	if err != nil {
		return nil, err
	}

	// Pass 3: whole-graph integrity.
	if err := validateGraph(blocks, doc.Start, doc.Final); err != nil {
		return nil, err
	}

	return &models.Scenario{
		BotName:         doc.BotName,
		StartBlockID:    doc.Start,
		FinalBlockID:    doc.Final,
		GlobalVariables: globalVars,
		Blocks:          blocks,
	}, nil
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func parseGlobalVariables(raw []rawGlobalVar) ([]models.GlobalVariable, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]models.GlobalVariable, 0, len(raw))

	for i, v := range raw {
		path := fmt.Sprintf("GlobalVariables[%d]", i)
		if v.Name == "" {
			return nil, models.NewValidationError("missing field 'name'", path)
		}
		path = fmt.Sprintf("GlobalVariables[%d].%s", i, v.Name)
		if v.Type == "" {
			return nil, models.NewValidationError("missing field 'type'", path+".type")
		}
		if seen[v.Name] {
			return nil, models.NewValidationError("duplicate variable name: "+v.Name, path)
		}
		seen[v.Name] = true

		varType, ok := allowedVariableTypes[v.Type]
		if !ok {
			return nil, models.NewValidationError(
				fmt.Sprintf("invalid variable type %q (allowed: string, number, boolean)", v.Type),
				path+".type",
			)
		}

		var defaultVal any
		if len(v.Default) > 0 {
			if err := json.Unmarshal(v.Default, &defaultVal); err != nil {
				return nil, models.NewValidationError("invalid default value: "+err.Error(), path+".default")
			}
			if err := validateVariableValue(varType, defaultVal, path+".default"); err != nil {
				return nil, err
			}
		}

		out = append(out, models.GlobalVariable{
			Name:        v.Name,
			Type:        varType,
			Default:     defaultVal,
			Description: v.Description,
		})
	}
	return out, nil
}

func validateVariableValue(varType models.VariableType, value any, path string) error {
	switch varType {
	case models.VarString:
		if _, ok := value.(string); !ok {
			return models.NewValidationError("value must be a string", path)
		}
	case models.VarNumber:
		if _, ok := value.(float64); !ok {
			return models.NewValidationError("value must be a number", path)
		}
	case models.VarBoolean:
		if _, ok := value.(bool); !ok {
			return models.NewValidationError("value must be a boolean", path)
		}
	}
	return nil
}

func parseBlocks(raw []rawBlock) (map[string]*models.Block, error) {
	blocks := make(map[string]*models.Block, len(raw))

	for _, rb := range raw {
		if rb.BlockID == "" || rb.Type == "" {
			return nil, models.NewValidationError("missing required field Block_id or Type", "Blocks")
		}
		if !isValidUUID(rb.BlockID) {
			return nil, (&models.ValidationError{Message: "Block_id must be a valid UUID", Path: "Block_id"}).WithBlock(rb.BlockID, rb.Type)
		}
		if _, dup := blocks[rb.BlockID]; dup {
			return nil, (&models.ValidationError{Message: "duplicate Block_id", Path: "Block_id"}).WithBlock(rb.BlockID, rb.Type)
		}

		blockType := models.BlockType(rb.Type)
		block := &models.Block{
			ID:   rb.BlockID,
			Type: blockType,
			Name: rb.BlockName,
			Connections: models.Connections{
				In:  rb.Connections.In,
				Out: rb.Connections.Out,
			},
		}
		if rb.X != nil {
			block.X = *rb.X
		}
		if rb.Y != nil {
			block.Y = *rb.Y
		}

		if err := parseParams(block, rb.Params); err != nil {
			return nil, err
		}
		if err := validateConnections(block); err != nil {
			return nil, err
		}

		blocks[rb.BlockID] = block
	}
	return blocks, nil
}

func parseParams(block *models.Block, raw json.RawMessage) error {
	var params map[string]json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return (&models.ValidationError{Message: "Params must be an object: " + err.Error(), Path: "Params"}).WithBlock(block.ID, string(block.Type))
		}
	}

	switch block.Type {
	case models.BlockStart, models.BlockFinal:
		if len(params) > 0 {
			return (&models.ValidationError{Message: "Params must be an empty object", Path: "Params"}).WithBlock(block.ID, string(block.Type))
		}
	case models.BlockSendMessage:
		msg, err := requiredString(params, "message", block)
		if err != nil {
			return err
		}
		block.Message = msg
	case models.BlockGetMessage:
		msg, err := requiredString(params, "message", block)
		if err != nil {
			return err
		}
		v, err := requiredString(params, "var", block)
		if err != nil {
			return err
		}
		block.Prompt = msg
		block.Var = v
		block.InputType = models.VarString
		if raw, ok := params["type"]; ok {
			var t string
			if err := json.Unmarshal(raw, &t); err != nil {
				return (&models.ValidationError{Message: "Params.type must be a string", Path: "Params.type"}).WithBlock(block.ID, string(block.Type))
			}
			varType, ok := allowedVariableTypes[t]
			if !ok {
				return (&models.ValidationError{
					Message: fmt.Sprintf("invalid input type %q (allowed: string, number, boolean)", t),
					Path:    "Params.type",
				}).WithBlock(block.ID, string(block.Type))
			}
			block.InputType = varType
		}
	case models.BlockChoice:
		prompt, err := requiredString(params, "prompt", block)
		if err != nil {
			return err
		}
		v, err := requiredString(params, "var", block)
		if err != nil {
			return err
		}
		opts, err := parseChoiceOptions(params, block)
		if err != nil {
			return err
		}
		block.Prompt = prompt
		block.Var = v
		block.Options = opts
	case models.BlockCondition:
		cond, err := requiredString(params, "condition", block)
		if err != nil {
			return err
		}
		block.Condition = cond
	case models.BlockAPIRequest:
		return parseAPIRequestParams(block, params)
	default:
		return (&models.ValidationError{Message: "unknown block type: " + string(block.Type), Path: "Type"}).WithBlock(block.ID, string(block.Type))
	}
	return nil
}

func requiredString(params map[string]json.RawMessage, field string, block *models.Block) (string, error) {
	raw, ok := params[field]
	if !ok {
		return "", (&models.ValidationError{
			Message: "missing required field '" + field + "'",
			Path:    "Params." + field,
		}).WithBlock(block.ID, string(block.Type))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", (&models.ValidationError{
			Message: "Params." + field + " must be a string",
			Path:    "Params." + field,
		}).WithBlock(block.ID, string(block.Type))
	}
	return s, nil
}

func parseChoiceOptions(params map[string]json.RawMessage, block *models.Block) ([]models.ChoiceOption, error) {
	raw, ok := params["options"]
	if !ok {
		return nil, (&models.ValidationError{Message: "missing required field 'options'", Path: "Params.options"}).WithBlock(block.ID, string(block.Type))
	}
	var rawOpts []rawChoiceOption
	if err := json.Unmarshal(raw, &rawOpts); err != nil {
		return nil, (&models.ValidationError{Message: "Params.options must be an array", Path: "Params.options"}).WithBlock(block.ID, string(block.Type))
	}

	seen := make(map[string]bool, len(rawOpts))
	out := make([]models.ChoiceOption, 0, len(rawOpts))
	for i, opt := range rawOpts {
		path := fmt.Sprintf("Params.options[%d]", i)
		if opt.ID == "" {
			return nil, (&models.ValidationError{Message: "missing field 'id' in option", Path: path + ".id"}).WithBlock(block.ID, string(block.Type))
		}
		if opt.Label == "" {
			return nil, (&models.ValidationError{Message: "missing field 'label' in option", Path: path + ".label"}).WithBlock(block.ID, string(block.Type))
		}
		if len(opt.Value) == 0 {
			return nil, (&models.ValidationError{Message: "missing field 'value' in option", Path: path + ".value"}).WithBlock(block.ID, string(block.Type))
		}
		if seen[opt.ID] {
			return nil, (&models.ValidationError{Message: "duplicate option id: " + opt.ID, Path: path + ".id"}).WithBlock(block.ID, string(block.Type))
		}
		seen[opt.ID] = true

		var value any
		if err := json.Unmarshal(opt.Value, &value); err != nil {
			return nil, (&models.ValidationError{Message: "invalid option value: " + err.Error(), Path: path + ".value"}).WithBlock(block.ID, string(block.Type))
		}
		out = append(out, models.ChoiceOption{ID: opt.ID, Label: opt.Label, Value: value})
	}
	return out, nil
}

func parseAPIRequestParams(block *models.Block, params map[string]json.RawMessage) error {
	url, err := requiredString(params, "url", block)
	if err != nil {
		return err
	}
	method, err := requiredString(params, "method", block)
	if err != nil {
		return err
	}

	headers := map[string]string{}
	if raw, ok := params["headers"]; ok {
		if err := json.Unmarshal(raw, &headers); err != nil {
			return (&models.ValidationError{Message: "Params.headers must be an object of strings", Path: "Params.headers"}).WithBlock(block.ID, string(block.Type))
		}
	}

	body := ""
	if raw, ok := params["body"]; ok {
		var b string
		if err := json.Unmarshal(raw, &b); err == nil {
			body = b
		} else {
			body = string(raw)
		}
	}

	respVars := map[string]string{}
	if raw, ok := params["variables"]; ok {
		if err := json.Unmarshal(raw, &respVars); err != nil {
			return (&models.ValidationError{Message: "Params.variables must be an object of strings", Path: "Params.variables"}).WithBlock(block.ID, string(block.Type))
		}
	}

	block.APIRequest = models.APIRequestParams{
		URL:          url,
		Method:       method,
		Headers:      headers,
		Body:         body,
		ResponseVars: respVars,
	}
	return nil
}

func validateConnections(block *models.Block) error {
	in := block.Connections.In
	out := block.Connections.Out

	for i, id := range in {
		if !isValidUUID(id) {
			return (&models.ValidationError{Message: fmt.Sprintf("invalid UUID in In[%d]", i), Path: fmt.Sprintf("Connections.In[%d]", i)}).WithBlock(block.ID, string(block.Type))
		}
	}
	for i, id := range out {
		if !isValidUUID(id) {
			return (&models.ValidationError{Message: fmt.Sprintf("invalid UUID in Out[%d]", i), Path: fmt.Sprintf("Connections.Out[%d]", i)}).WithBlock(block.ID, string(block.Type))
		}
	}

	switch block.Type {
	case models.BlockStart:
		if len(in) != 0 {
			return (&models.ValidationError{Message: "In must be empty", Path: "Connections.In"}).WithBlock(block.ID, string(block.Type))
		}
		if len(out) < 1 {
			return (&models.ValidationError{Message: "Out must contain at least 1 element", Path: "Connections.Out"}).WithBlock(block.ID, string(block.Type))
		}
	case models.BlockFinal:
		if len(in) < 1 {
			return (&models.ValidationError{Message: "In must contain at least 1 element", Path: "Connections.In"}).WithBlock(block.ID, string(block.Type))
		}
		if len(out) != 0 {
			return (&models.ValidationError{Message: "Out must be empty", Path: "Connections.Out"}).WithBlock(block.ID, string(block.Type))
		}
	case models.BlockCondition, models.BlockAPIRequest:
		if len(in) < 1 {
			return (&models.ValidationError{Message: "In must contain at least 1 element", Path: "Connections.In"}).WithBlock(block.ID, string(block.Type))
		}
		if len(out) != 2 {
			return (&models.ValidationError{Message: "Out must contain exactly 2 elements", Path: "Connections.Out"}).WithBlock(block.ID, string(block.Type))
		}
	case models.BlockChoice:
		if len(in) < 1 {
			return (&models.ValidationError{Message: "In must contain at least 1 element", Path: "Connections.In"}).WithBlock(block.ID, string(block.Type))
		}
		// Out-vs-options count is checked once options are known, in validateGraph.
	default:
		if len(in) < 1 {
			return (&models.ValidationError{Message: "In must contain at least 1 element", Path: "Connections.In"}).WithBlock(block.ID, string(block.Type))
		}
		if len(out) < 1 {
			return (&models.ValidationError{Message: "Out must contain at least 1 element", Path: "Connections.Out"}).WithBlock(block.ID, string(block.Type))
		}
	}
	return nil
}

func validateGraph(blocks map[string]*models.Block, startID, finalID string) error {
	start, ok := blocks[startID]
	if !ok {
		return models.NewValidationError("start block not found in Blocks: "+startID, "Start")
	}
	if start.Type != models.BlockStart {
		return (&models.ValidationError{Message: "start block must have type 'start'"}).WithBlock(startID, string(start.Type))
	}

	final, ok := blocks[finalID]
	if !ok {
		return models.NewValidationError("final block not found in Blocks: "+finalID, "Final")
	}
	if final.Type != models.BlockFinal {
		return (&models.ValidationError{Message: "final block must have type 'final'"}).WithBlock(finalID, string(final.Type))
	}

	for id, block := range blocks {
		for i, target := range block.Connections.In {
			if _, ok := blocks[target]; !ok {
				return (&models.ValidationError{
					Message: fmt.Sprintf("In[%d] references nonexistent block %s", i, target),
					Path:    fmt.Sprintf("Connections.In[%d]", i),
				}).WithBlock(id, string(block.Type))
			}
		}
		for i, target := range block.Connections.Out {
			if _, ok := blocks[target]; !ok {
				return (&models.ValidationError{
					Message: fmt.Sprintf("Out[%d] references nonexistent block %s", i, target),
					Path:    fmt.Sprintf("Connections.Out[%d]", i),
				}).WithBlock(id, string(block.Type))
			}
		}

		if block.Type == models.BlockChoice {
			if len(block.Options) != len(block.Connections.Out) {
				return (&models.ValidationError{
					Message: fmt.Sprintf("number of options (%d) does not match number of outgoing edges (%d)", len(block.Options), len(block.Connections.Out)),
					Path:    "Connections.Out",
				}).WithBlock(id, string(block.Type))
			}
		}
	}
	return nil
}
