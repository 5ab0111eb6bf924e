package gemini

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSON Schemas the model responses must conform to. A response that fails
// its schema is a permanent error for the attempt: the caller's retry
// budget covers transport failures, not malformed generations.

const topicsSchema = `{
	"type": "object",
	"required": ["topics"],
	"properties": {
		"topics": {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"concepts": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string"},
					"importance": {"type": "string"}
				}
			}
		},
		"key_terms": {"type": "array", "items": {"type": "string"}}
	}
}`

const refinedSchema = `{
	"type": "object",
	"required": ["main_topics"],
	"properties": {
		"main_topics": {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"subtopics": {
			"type": "object",
			"additionalProperties": {"type": "array", "items": {"type": "string"}}
		},
		"key_concepts": {"type": "array", "items": {"type": "string"}}
	}
}`

const tagsSchema = `{
	"type": "object",
	"required": ["tags"],
	"properties": {
		"tags": {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"difficulty_tags": {"type": "array", "items": {"type": "string"}}
	}
}`

const questionsSchema = `{
	"type": "object",
	"required": ["questions"],
	"properties": {
		"questions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["question"],
				"properties": {
					"question": {"type": "string", "minLength": 1},
					"context": {"type": "string"},
					"difficulty": {"type": "string"}
				}
			}
		}
	}
}`

const answerSchema = `{
	"type": "object",
	"required": ["answer"],
	"properties": {
		"answer": {"type": "string", "minLength": 1},
		"explanation": {"type": "string"},
		"difficulty_rating": {"type": "string"}
	}
}`

// compileSchema compiles one raw schema document, panicking on failure:
// the schemas are package constants, so a compile error is a programming
// mistake caught by the first test run.
func compileSchema(name, raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("adding schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compiling schema %s: %v", name, err))
	}
	return schema
}

var (
	compiledTopicsSchema    = compileSchema("topics.json", topicsSchema)
	compiledRefinedSchema   = compileSchema("refined.json", refinedSchema)
	compiledTagsSchema      = compileSchema("tags.json", tagsSchema)
	compiledQuestionsSchema = compileSchema("questions.json", questionsSchema)
	compiledAnswerSchema    = compileSchema("answer.json", answerSchema)
)
