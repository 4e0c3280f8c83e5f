package mcpserver

// FunctionsFormatContract describes the project documents that LLM
// consumers should produce when planning or re-planning.
const FunctionsFormatContract = `# taskgraph Functions Format

A plan is a list of functions plus the data structures they use. It lives in
` + "`docs/functions.json`" + ` and ` + "`docs/architecture.json`" + ` (YAML variants are accepted)
and is the argument of the ` + "`replace_graph`" + ` tool.

## functions.json

` + "```" + `json
{
  "functions": [
    {
      "id": "F1",
      "name": "parseNote",
      "file": "internal/note/parse.go",
      "signature": "func parseNote(b []byte) (Note, error)",
      "business_logic": "what the function achieves",
      "code_logic": "how it does it",
      "test_cases": ["empty input"],
      "test_file": "internal/note/parse_test.go",
      "dependencies": [],
      "uses": ["Note"]
    }
  ]
}
` + "```" + `

A bare array of functions is accepted as well.

## Rules

1. **` + "`id`" + ` is unique** and never reused for a different function.
2. **` + "`dependencies`" + `** name functions that must be implemented first. Every id
   must exist in the same plan and the dependency graph must not have cycles.
3. **` + "`uses`" + `** names data structures declared in ` + "`architecture.json`" + `.
4. **` + "`called_by`" + `** is computed; any value given is ignored.
5. A function whose name, file, signature, logic, test cases, dependencies or
   uses change counts as modified. If it was completed it is reopened as pending.

## architecture.json

` + "```" + `json
{
  "project_name": "notes",
  "overview": "Markdown notes with tags",
  "technical_stack": {"language": "go"},
  "project_structure": "cmd/ and internal/",
  "data_structures": [
    {"name": "Note", "description": "a parsed note", "fields": [{"name": "title", "type": "string"}]}
  ]
}
` + "```" + `

` + "`data_structures`" + ` may also be an object keyed by name, and ` + "`fields`" + ` an
object mapping field name to type.

## Status flow

` + "`pending -> in_progress -> completed`" + `. Any status can move to ` + "`blocked`" + `,
and ` + "`blocked`" + ` returns to ` + "`pending`" + `. Progress lives in ` + "`docs/progress.json`" + `
and is written by the tracker; do not edit it while the server runs.
`
