// Package openapi embeds the aduan API contract and validates inbound
// request bodies against it before they reach the handlers.
package openapi

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/pitabwire/aduan/model"
)

//go:embed aduan.yaml
var specYAML []byte

// IndexedOperation holds a resolved OpenAPI operation.
type IndexedOperation struct {
	OperationID  string
	Method       string
	PathTemplate string
	RequestBody  *openapi3.RequestBody
}

// Index is an in-memory index of the API's operations keyed by operationId.
type Index struct {
	operations map[string]IndexedOperation
}

// Load parses the embedded spec and indexes all operations.
func Load() (*Index, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("openapi: loading embedded spec: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("openapi: validating embedded spec: %w", err)
	}

	idx := &Index{operations: make(map[string]IndexedOperation)}
	for path, pathItem := range doc.Paths.Map() {
		for method, op := range pathItem.Operations() {
			if op.OperationID == "" {
				continue
			}
			var reqBody *openapi3.RequestBody
			if op.RequestBody != nil && op.RequestBody.Value != nil {
				reqBody = op.RequestBody.Value
			}
			idx.operations[op.OperationID] = IndexedOperation{
				OperationID:  op.OperationID,
				Method:       method,
				PathTemplate: path,
				RequestBody:  reqBody,
			}
		}
	}
	return idx, nil
}

// GetOperation returns the indexed operation for the given operation ID.
func (idx *Index) GetOperation(operationID string) (IndexedOperation, bool) {
	op, ok := idx.operations[operationID]
	return op, ok
}

// AllOperationIDs returns all indexed operation IDs, sorted.
func (idx *Index) AllOperationIDs() []string {
	ids := make([]string, 0, len(idx.operations))
	for id := range idx.operations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateBody validates a decoded request body against the operation's
// JSON request schema. Returns field-level errors, empty when valid.
func (idx *Index) ValidateBody(operationID string, body map[string]any) []model.FieldError {
	op, ok := idx.operations[operationID]
	if !ok {
		return []model.FieldError{{Message: fmt.Sprintf("operation %s not found", operationID)}}
	}
	if op.RequestBody == nil {
		return nil
	}

	ct := op.RequestBody.Content.Get("application/json")
	if ct == nil || ct.Schema == nil || ct.Schema.Value == nil {
		return nil
	}
	schema := ct.Schema.Value

	var errs []model.FieldError
	for _, req := range schema.Required {
		if _, exists := body[req]; !exists {
			errs = append(errs, model.FieldError{
				Field:   req,
				Message: fmt.Sprintf("%s is required", req),
			})
		}
	}
	if len(errs) > 0 {
		return errs
	}

	if err := schema.VisitJSON(body); err != nil {
		errs = append(errs, fieldErrorFrom(err))
	}
	return errs
}

// fieldErrorFrom converts a kin-openapi schema error into a field error.
func fieldErrorFrom(err error) model.FieldError {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		return model.FieldError{
			Field:   strings.Join(schemaErr.JSONPointer(), "."),
			Message: schemaErr.Reason,
		}
	}
	return model.FieldError{Message: err.Error()}
}
