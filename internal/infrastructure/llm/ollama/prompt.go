package ollama

func buildCommitmentPrompt(text string) string {
	const maxSnippet = 8000
	snippet := text
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	return `You are a grants compliance analyst.
Read the award document below and list every obligation the grantee has accepted.
Return a strict JSON object: {"commitments": [...]}.
Each commitment has keys:
type (one of: deliverable, outcome_metric, report_due, budget_spend, staffing, timeline),
description (string),
metric_name (string, empty if none),
metric_value (string, empty if none),
due_date (ISO date YYYY-MM-DD, empty if none).
No markdown, no extra keys. Return {"commitments": []} if there are none.

Document:
` + snippet
}
