package statecraft

import (
	"reflect"
	"testing"
)

func TestMapContextGetSetHasRemove(t *testing.T) {
	ctx := NewMapContext(map[string]any{"x": 1})
	if v, ok := ctx.Get("x"); !ok || v != 1 {
		t.Fatalf("expected x=1, got %v ok=%v", v, ok)
	}
	ctx.Set("y", "hi")
	if !ctx.Has("y") {
		t.Fatalf("expected Has(y) to be true after Set")
	}
	ctx.Remove("x")
	if ctx.Has("x") {
		t.Fatalf("expected Has(x) to be false after Remove")
	}
}

func TestMapContextCloneIsIndependentOfOriginal(t *testing.T) {
	ctx := NewMapContext(map[string]any{"nested": map[string]any{"a": 1}})
	clone := ctx.Clone()

	nested := clone.AsMap()["nested"].(map[string]any)
	nested["a"] = 999

	original := ctx.AsMap()["nested"].(map[string]any)
	if original["a"] != 1 {
		t.Fatalf("expected mutating the clone's nested map not to affect the original, got %v", original["a"])
	}
}

func TestRequiredFieldsValidatorReportsMissingAndWrongType(t *testing.T) {
	v := RequiredFieldsValidator{Required: map[string]reflect.Type{
		"amount": reflect.TypeOf(float64(0)),
	}}

	if err := v.Validate(map[string]any{}); err == nil {
		t.Fatalf("expected an error for a missing required field")
	}
	if err := v.Validate(map[string]any{"amount": "not-a-number"}); err == nil {
		t.Fatalf("expected an error for a mismatched type")
	}
	if err := v.Validate(map[string]any{"amount": 5.0}); err != nil {
		t.Fatalf("expected no error for a matching type, got %v", err)
	}
}

func TestNewTypedContextSeedsFromStructAndValidates(t *testing.T) {
	type order struct {
		Amount float64 `json:"amount"`
	}
	validator := RequiredFieldsValidator{Required: map[string]reflect.Type{"amount": reflect.TypeOf(float64(0))}}

	tc, err := NewTypedContext(order{Amount: 10}, validator)
	if err != nil {
		t.Fatalf("NewTypedContext: %v", err)
	}
	if v, _ := tc.Get("amount"); v != 10.0 {
		t.Fatalf("expected amount=10, got %v", v)
	}
}

func TestNewTypedContextFailsValidationBubblesUp(t *testing.T) {
	validator := RequiredFieldsValidator{Required: map[string]reflect.Type{"amount": nil}}
	_, err := NewTypedContext(map[string]any{}, validator)
	if err == nil {
		t.Fatalf("expected construction to fail when the seed fails validation")
	}
}

func TestTypedContextCloneDeepCopies(t *testing.T) {
	tc, err := NewTypedContext(map[string]any{"items": []any{map[string]any{"n": 1}}}, nil)
	if err != nil {
		t.Fatalf("NewTypedContext: %v", err)
	}
	clone := tc.Clone()
	items := clone.AsMap()["items"].([]any)
	items[0].(map[string]any)["n"] = 2

	original := tc.AsMap()["items"].([]any)
	if original[0].(map[string]any)["n"] != 1 {
		t.Fatalf("expected the clone's mutation not to leak into the original")
	}
}
