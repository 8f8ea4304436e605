// Package prompts builds the LLM prompts used by the catalog enrichment
// pipeline. Prompt text is deliberately plain: the gateway model receives the
// extracted statistics verbatim and returns JSON documents.
package prompts

import (
	"fmt"
	"strings"
)

// TableContext is the statistical context for one table, as gathered by
// extraction, rendered into prompts.
type TableContext struct {
	Name     string
	RowCount int64
	Columns  []ColumnContext
}

// ColumnContext is the per-column statistical context rendered into prompts.
type ColumnContext struct {
	Name         string
	DataType     string
	NullRate     float64
	DistinctRate float64
	ValuePattern string
}

// EnrichmentSystem is the system prompt for batched table enrichment.
func EnrichmentSystem() string {
	return `You are a data catalog assistant. You write concise, business-oriented
descriptions of database tables and columns based on their names and
statistical profiles. Respond with JSON only, no commentary.`
}

// EnrichmentBatch builds the user prompt for one batch of tables.
func EnrichmentBatch(tables []TableContext) string {
	var b strings.Builder
	b.WriteString("Describe the following tables and their columns.\n")
	b.WriteString("Return JSON of the form:\n")
	b.WriteString(`{"tables":[{"name":"...","description":"...","columns":[{"name":"...","description":"...","synonyms":["..."]}]}]}`)
	b.WriteString("\n\nTables:\n")
	writeTableContext(&b, tables)
	return b.String()
}

// KPIGeneration builds the prompt asking for KPI suggestions over the
// enriched catalog.
func KPIGeneration(tables []TableContext) string {
	var b strings.Builder
	b.WriteString("Suggest up to 10 key performance indicators computable from these tables.\n")
	b.WriteString("Return JSON of the form:\n")
	b.WriteString(`{"kpis":[{"name":"...","description":"...","expression":"..."}]}`)
	b.WriteString("\n\nTables:\n")
	writeTableContext(&b, tables)
	return b.String()
}

// QuestionGeneration builds the prompt asking for suggested analytical
// questions over the enriched catalog.
func QuestionGeneration(tables []TableContext) string {
	var b strings.Builder
	b.WriteString("Suggest up to 10 natural-language questions an analyst could answer with these tables.\n")
	b.WriteString("Return JSON of the form:\n")
	b.WriteString(`{"questions":["..."]}`)
	b.WriteString("\n\nTables:\n")
	writeTableContext(&b, tables)
	return b.String()
}

func writeTableContext(b *strings.Builder, tables []TableContext) {
	for _, t := range tables {
		fmt.Fprintf(b, "\n## %s (%d rows)\n", t.Name, t.RowCount)
		for _, c := range t.Columns {
			fmt.Fprintf(b, "- %s %s null=%.2f distinct=%.2f", c.Name, c.DataType, c.NullRate, c.DistinctRate)
			if c.ValuePattern != "" {
				fmt.Fprintf(b, " pattern=%s", c.ValuePattern)
			}
			b.WriteString("\n")
		}
	}
}
