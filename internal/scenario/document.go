package scenario

import "encoding/json"

// document is the wire shape of a scenario JSON document, bit-exact with the
// fields the authoring tool persists: BotName, Start, Final, GlobalVariables,
// Blocks, and per-block Block_id/Type/Connections/Params/BlockName/X/Y.
type document struct {
	BotName         string            `json:"BotName"`
	Start           string            `json:"Start"`
	Final           string            `json:"Final"`
	GlobalVariables []rawGlobalVar    `json:"GlobalVariables"`
	Blocks          []rawBlock        `json:"Blocks"`
}

type rawGlobalVar struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Default     json.RawMessage `json:"default"`
	Description string          `json:"description"`
}

type rawConnections struct {
	In  []string `json:"In"`
	Out []string `json:"Out"`
}

type rawBlock struct {
	BlockID     string          `json:"Block_id"`
	Type        string          `json:"Type"`
	BlockName   string          `json:"BlockName"`
	Connections rawConnections  `json:"Connections"`
	Params      json.RawMessage `json:"Params"`
	X           *float64        `json:"X"`
	Y           *float64        `json:"Y"`
}

type rawChoiceOption struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Value json.RawMessage `json:"value"`
}
