package gemini

import "text/template"

// Prompt templates for the five generation calls. Every prompt demands a
// JSON-only response matching the corresponding schema in schemas.go.

const topicsPromptText = `You are analyzing one section of a study document.

Section {{.ChunkNumber}} of {{.TotalChunks}}:
---
{{.ChunkText}}
---

Identify the topics covered in this section. Respond with JSON only, in this shape:
{"topics": ["..."], "concepts": [{"name": "...", "importance": "high|medium|low"}], "key_terms": ["..."]}

List every distinct topic the section covers. Include important concepts with an importance rating, and any key terms a learner should know.`

const refinePromptText = `You are consolidating topic lists extracted from every section of a document{{if .DocumentTitle}} titled "{{.DocumentTitle}}"{{end}}{{if .Subject}} on the subject "{{.Subject}}"{{end}}.

Per-section topics:
{{range .Sections}}Section {{.ChunkIndex}}: {{join .Topics ", "}}
{{end}}

Merge duplicates and organize the result into 5 to 15 main topics with optional subtopics. Respond with JSON only, in this shape:
{"main_topics": ["..."], "subtopics": {"main topic": ["..."]}, "key_concepts": ["..."]}`

const tagsPromptText = `You are generating Anki-style tags for a flashcard deck built from a document{{if .DocumentTitle}} titled "{{.DocumentTitle}}"{{end}}{{if .Subject}} on the subject "{{.Subject}}"{{end}}{{if .Chapter}}, chapter "{{.Chapter}}"{{end}}.

Main topics: {{join .MainTopics ", "}}
{{if .CustomTags}}The user already chose these tags, do not repeat them: {{join .CustomTags ", "}}{{end}}

Produce concise lowercase tags. Use "::" for hierarchy (for example "biology::cell-membrane"). Respond with JSON only, in this shape:
{"tags": ["..."], "difficulty_tags": ["..."]}`

const questionsPromptText = `You are writing flashcard questions from one section of a study document.

Section text:
---
{{.ChunkText}}
---

Document main topics: {{join .MainTopics ", "}}

Write exactly {{.NumQuestions}} clear, self-contained questions testing understanding of this section. Prefer why/how questions over pure recall where the text supports it. Assign each a difficulty of "easy", "medium" or "hard". Respond with JSON only, in this shape:
{"questions": [{"question": "...", "context": "...", "difficulty": "easy|medium|hard"}]}

The context field is the minimal framing a learner needs to understand the question without seeing the section.`

const answerPromptText = `Answer the following flashcard question using only the source text below.

Question: {{.Question}}
{{if .Context}}Context: {{.Context}}{{end}}

Source text:
---
{{.ChunkText}}
---

Give a complete but concise answer, an optional short explanation that deepens understanding, and a difficulty rating. Respond with JSON only, in this shape:
{"answer": "...", "explanation": "...", "difficulty_rating": "easy|medium|hard"}`

var promptFuncs = template.FuncMap{
	"join": joinStrings,
}

var (
	topicsPrompt    = template.Must(template.New("topics").Funcs(promptFuncs).Parse(topicsPromptText))
	refinePrompt    = template.Must(template.New("refine").Funcs(promptFuncs).Parse(refinePromptText))
	tagsPrompt      = template.Must(template.New("tags").Funcs(promptFuncs).Parse(tagsPromptText))
	questionsPrompt = template.Must(template.New("questions").Funcs(promptFuncs).Parse(questionsPromptText))
	answerPrompt    = template.Must(template.New("answer").Funcs(promptFuncs).Parse(answerPromptText))
)

func joinStrings(items []string, sep string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += sep
		}
		out += item
	}
	return out
}
