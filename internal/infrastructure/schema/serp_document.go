// Package schema validates cached payloads before they are decoded into domain types.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

// Optional nested fields that degraded recovery may drop.
const htmlAnalysisField = "htmlAnalysis"

var (
	serpOnce   sync.Once
	serpSchema *openapi3.Schema
)

func stringArray() *openapi3.Schema {
	return openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())
}

func htmlAnalysisSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("title", openapi3.NewStringSchema()).
		WithProperty("h1", stringArray()).
		WithProperty("h2", stringArray()).
		WithProperty("h3", stringArray()).
		WithProperty("h1Consistency", openapi3.NewBoolSchema()).
		WithProperty("markdown", openapi3.NewStringSchema()).
		WithProperty("analyzedAt", openapi3.NewDateTimeSchema()).
		WithRequired([]string{"title", "h1Consistency"})
}

func organicResultSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("position", openapi3.NewIntegerSchema().WithMin(1)).
		WithProperty("title", openapi3.NewStringSchema()).
		WithProperty("url", openapi3.NewStringSchema()).
		WithProperty("description", openapi3.NewStringSchema()).
		WithProperty("displayedUrl", openapi3.NewStringSchema()).
		WithProperty(htmlAnalysisField, htmlAnalysisSchema()).
		WithRequired([]string{"position", "title", "url"})
}

func analysisSchema() *openapi3.Schema {
	domainCount := openapi3.NewObjectSchema().
		WithProperty("domain", openapi3.NewStringSchema()).
		WithProperty("count", openapi3.NewIntegerSchema().WithMin(0))
	return openapi3.NewObjectSchema().
		WithProperty("totalResults", openapi3.NewIntegerSchema().WithMin(0)).
		WithProperty("domainFrequency", openapi3.NewObjectSchema().WithAdditionalProperties(openapi3.NewIntegerSchema())).
		WithProperty("topDomains", openapi3.NewArraySchema().WithItems(domainCount)).
		WithProperty("avgTitleLength", openapi3.NewFloat64Schema()).
		WithProperty("avgDescriptionLength", openapi3.NewFloat64Schema())
}

func keywordResultSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("query", openapi3.NewStringSchema()).
		WithProperty("organicResults", openapi3.NewArraySchema().WithItems(organicResultSchema())).
		WithProperty("analysis", analysisSchema()).
		WithRequired([]string{"query", "organicResults"})
}

// SerpDocumentSchema is the schema of a persisted domain.SerpDocument.
func SerpDocumentSchema() *openapi3.Schema {
	serpOnce.Do(func() {
		serpSchema = openapi3.NewObjectSchema().
			WithProperty("key", openapi3.NewStringSchema()).
			WithProperty("keywords", stringArray()).
			WithProperty("region", openapi3.NewStringSchema()).
			WithProperty("language", openapi3.NewStringSchema()).
			WithProperty("results", openapi3.NewObjectSchema().WithAdditionalProperties(keywordResultSchema())).
			WithRequired([]string{"keywords", "region", "language", "results"})
	})
	return serpSchema
}

// DecodeSerpDocument validates raw and decodes it. When validation fails it
// retries once with every optional nested htmlAnalysis removed; partial
// reports that the recovered document lost those fields.
func DecodeSerpDocument(raw []byte) (doc *domain.SerpDocument, partial bool, err error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, domain.WrapError(domain.ErrSchemaValidation, "decode serp document", err)
	}

	doc, firstErr := validateAndDecode(value)
	if firstErr == nil {
		return doc, false, nil
	}

	if !stripOptionalFields(value) {
		return nil, false, domain.WrapError(domain.ErrSchemaValidation, "decode serp document", firstErr)
	}
	doc, err = validateAndDecode(value)
	if err != nil {
		return nil, false, domain.WrapError(domain.ErrSchemaValidation, "decode serp document", fmt.Errorf("%w; after recovery: %v", firstErr, err))
	}
	return doc, true, nil
}

func validateAndDecode(value any) (*domain.SerpDocument, error) {
	if err := SerpDocumentSchema().VisitJSON(value); err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var doc domain.SerpDocument
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// stripOptionalFields removes htmlAnalysis from every organic result and
// reports whether anything was removed.
func stripOptionalFields(value any) bool {
	root, ok := value.(map[string]any)
	if !ok {
		return false
	}
	results, ok := root["results"].(map[string]any)
	if !ok {
		return false
	}
	stripped := false
	for _, entry := range results {
		keywordResult, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		organic, ok := keywordResult["organicResults"].([]any)
		if !ok {
			continue
		}
		for _, item := range organic {
			result, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if _, has := result[htmlAnalysisField]; has {
				delete(result, htmlAnalysisField)
				stripped = true
			}
		}
	}
	return stripped
}
