package scenario

import (
	"strings"
	"testing"

	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/models"
)

const (
	startID    = "11111111-1111-1111-1111-111111111111"
	sendID     = "22222222-2222-2222-2222-222222222222"
	getMsgID   = "33333333-3333-3333-3333-333333333333"
	condID     = "44444444-4444-4444-4444-444444444444"
	adultID    = "55555555-5555-5555-5555-555555555555"
	minorID    = "66666666-6666-6666-6666-666666666666"
	finalID    = "77777777-7777-7777-7777-777777777777"
)

// validS1 mirrors the scenario used by the spec's end-to-end walkthrough:
// start -> sendMessage -> getMessage(age) -> condition(age>=18) -> [adult|minor] -> final.
func validS1() string {
	return `{
		"BotName": "age-gate",
		"Start": "` + startID + `",
		"Final": "` + finalID + `",
		"GlobalVariables": [],
		"Blocks": [
			{"Block_id": "` + startID + `", "Type": "start", "Connections": {"In": [], "Out": ["` + sendID + `"]}},
			{"Block_id": "` + sendID + `", "Type": "sendMessage", "Connections": {"In": ["` + startID + `"], "Out": ["` + getMsgID + `"]},
			 "Params": {"message": "Hello ${first_name}"}},
			{"Block_id": "` + getMsgID + `", "Type": "getMessage", "Connections": {"In": ["` + sendID + `"], "Out": ["` + condID + `"]},
			 "Params": {"message": "Age?", "var": "age", "type": "number"}},
			{"Block_id": "` + condID + `", "Type": "condition", "Connections": {"In": ["` + getMsgID + `"], "Out": ["` + adultID + `", "` + minorID + `"]},
			 "Params": {"condition": "age >= 18"}},
			{"Block_id": "` + adultID + `", "Type": "sendMessage", "Connections": {"In": ["` + condID + `"], "Out": ["` + finalID + `"]},
			 "Params": {"message": "Adult"}},
			{"Block_id": "` + minorID + `", "Type": "sendMessage", "Connections": {"In": ["` + condID + `"], "Out": ["` + finalID + `"]},
			 "Params": {"message": "Minor"}},
			{"Block_id": "` + finalID + `", "Type": "final", "Connections": {"In": ["` + adultID + `", "` + minorID + `"], "Out": []}}
		]
	}`
}

func TestValidate_ValidScenario(t *testing.T) {
	sc, err := Validate([]byte(validS1()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.BotName != "age-gate" {
		t.Errorf("BotName = %q, want age-gate", sc.BotName)
	}
	if sc.StartBlockID != startID || sc.FinalBlockID != finalID {
		t.Errorf("start/final mismatch")
	}
	if len(sc.Blocks) != 7 {
		t.Errorf("len(Blocks) = %d, want 7", len(sc.Blocks))
	}
	cond := sc.Block(condID)
	if cond == nil || cond.Condition != "age >= 18" {
		t.Errorf("condition block not parsed correctly")
	}
}

// TestValidate_RoundTrip validates the same document twice and compares the
// two indexed forms block by block. The package has no serialiser, so the
// scenario is not written back out and re-read between the two passes.
func TestValidate_RoundTrip(t *testing.T) {
	sc1, err := Validate([]byte(validS1()))
	if err != nil {
		t.Fatalf("first validate: %v", err)
	}
	sc2, err := Validate([]byte(validS1()))
	if err != nil {
		t.Fatalf("second validate: %v", err)
	}
	if len(sc1.Blocks) != len(sc2.Blocks) {
		t.Fatalf("re-validation produced a different block count")
	}
	for id, b1 := range sc1.Blocks {
		b2, ok := sc2.Blocks[id]
		if !ok || b1.Type != b2.Type {
			t.Fatalf("block %s mismatch across round trip", id)
		}
	}
}

func TestValidate_MissingBotName(t *testing.T) {
	doc := strings.Replace(validS1(), `"BotName": "age-gate",`, "", 1)
	_, err := Validate([]byte(doc))
	assertValidationError(t, err, "BotName")
}

func TestValidate_InvalidStartUUID(t *testing.T) {
	doc := strings.Replace(validS1(), `"Start": "`+startID+`",`, `"Start": "not-a-uuid",`, 1)
	_, err := Validate([]byte(doc))
	assertValidationError(t, err, "Start")
}

func TestValidate_DuplicateBlockID(t *testing.T) {
	doc := strings.Replace(validS1(),
		`{"Block_id": "`+minorID+`", "Type": "sendMessage"`,
		`{"Block_id": "`+adultID+`", "Type": "sendMessage"`, 1)
	_, err := Validate([]byte(doc))
	var ve *models.ValidationError
	if !asValidationError(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.BlockID != adultID {
		t.Errorf("expected duplicate block id error for %s, got %q", adultID, ve.BlockID)
	}
}

func TestValidate_ChoiceOptionCountMismatch(t *testing.T) {
	doc := `{
		"BotName": "choice-test",
		"Start": "` + startID + `",
		"Final": "` + finalID + `",
		"Blocks": [
			{"Block_id": "` + startID + `", "Type": "start", "Connections": {"In": [], "Out": ["` + getMsgID + `"]}},
			{"Block_id": "` + getMsgID + `", "Type": "choice", "Connections": {"In": ["` + startID + `"], "Out": ["` + finalID + `"]},
			 "Params": {"prompt": "Pick one", "var": "answer", "options": [
				{"id": "a", "label": "Yes", "value": true},
				{"id": "b", "label": "No", "value": false}
			 ]}},
			{"Block_id": "` + finalID + `", "Type": "final", "Connections": {"In": ["` + getMsgID + `"], "Out": []}}
		]
	}`
	_, err := Validate([]byte(doc))
	assertValidationError(t, err, "Connections.Out")
}

func TestValidate_MissingStartBlock(t *testing.T) {
	doc := strings.Replace(validS1(), startID, "99999999-9999-9999-9999-999999999999", 1)
	_, err := Validate([]byte(doc))
	assertValidationError(t, err, "Start")
}

func assertValidationError(t *testing.T, err error, wantPathSubstr string) {
	t.Helper()
	var ve *models.ValidationError
	if !asValidationError(err, &ve) {
		t.Fatalf("expected *models.ValidationError, got %v", err)
	}
	if !strings.Contains(ve.Path, wantPathSubstr) && !strings.Contains(ve.Message, wantPathSubstr) {
		t.Errorf("error %q does not reference %q", ve.Error(), wantPathSubstr)
	}
}

func asValidationError(err error, target **models.ValidationError) bool {
	ve, ok := err.(*models.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}
