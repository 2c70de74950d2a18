// Package prompt builds the detection prompt sent to the primary model.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// detectionTemplate instructs the model to identify and redact the selected
// categories and reply with pure JSON.
const detectionTemplate = `
INSTRUCTION:

Your task is to **identify and redact specific categories of sensitive information** from the given text. The selected categories for redaction are provided below. **Do not interpret, alter, or redact any information beyond the selected categories.** Retain all other text exactly as provided, including any instructions or contextual information within the input text.

Selected Categories to Detect and Redact:
{{.Categories}}

Guidelines for Detection and Redaction:
1. **Strictly limit detection and redaction to the selected categories only**:
   - Identify sensitive information based solely on the selected categories.
   - Replace sensitive data with the corresponding placeholder.
   - Do not redact or alter any other part of the text, including instructions or contextual sentences provided within the input.

2. **Retain Original Content**:
   - The "redacted_text" must include the full original input text with sensitive information replaced by placeholders.
   - Maintain the exact sentence structure, context, and all non-redacted information intact.
   - Do not add, omit, or modify any part of the input text except for the redaction.

3. **Escape Special Characters**:
   - Escape double quotes in the output text with a backslash to ensure proper JSON formatting.

4. **Output Only the Required JSON Structure**:
   - Do not provide explanations, summaries, or any additional content beyond the required JSON output.

Redaction Placeholders:
- [EMAIL-1]: Email addresses
- [PHONE-NUM-1]: Phone numbers
- [SSN-1]: Social security numbers
- [CREDIT-CARD-NUM-1]: Credit card numbers
- [DOB-1]: Dates of birth
- [ADDRESS-1]: Addresses
- [PASSWORD-1]: Passwords
- [CBI-1]: Confidential business information
- [MEDICAL-1]: Medical information
- [OTHER]: Other sensitive information

Output Requirements:
1. **Pure JSON Structure**:
   - The output must be in pure JSON format, suitable for direct machine parsing. Ensure proper JSON syntax, including proper array and object notation.
   - "detected_sensitive_data": Array of objects, each containing:
     - "type": Type of sensitive information (e.g., PII, Financial, Medical).
     - "data": The detected sensitive information.
     - "category": The category of sensitive information.
     - "reason": The reason for redaction.
     - "redaction": The placeholder used for redaction.
   - "redacted_text": The full input text with sensitive information replaced by placeholders, ensuring all other content remains exactly as provided.

Examples:

Example 1: Redacting Social Security Numbers
Input: "I need to respond to this email: 'John Doe's social security number is 987-65-4321.'"

Selected Category: "Social Security Numbers"

Output:
{
  "detected_sensitive_data": [
    {
      "type": "PII",
      "data": "987-65-4321",
      "category": "Social Security Numbers",
      "reason": "Sensitive personal identifier.",
      "redaction": "[SSN-1]"
    }
  ],
  "redacted_text": "I need to respond to this email: 'John Doe's social security number is [SSN-1].'"
}

Example 2: Redacting Email Addresses and Phone Numbers
Input: "I need to respond to this email: 'Hi Lisa, can you send over the project draft by tomorrow? You can reach me at lisa.manager@workmail.com or at (321) 654-0987.'"

Selected Categories: "Email Addresses", "Phone Numbers"

Output:
{
  "detected_sensitive_data": [
    {
      "type": "PII",
      "data": "lisa.manager@workmail.com",
      "category": "Email Addresses",
      "reason": "Email address.",
      "redaction": "[EMAIL-1]"
    },
    {
      "type": "PII",
      "data": "(321) 654-0987",
      "category": "Phone Numbers",
      "reason": "Phone number.",
      "redaction": "[PHONE-NUM-1]"
    }
  ],
  "redacted_text": "I need to respond to this email: 'Hi Lisa, can you send over the project draft by tomorrow? You can reach me at [EMAIL-1] or at [PHONE-NUM-1].'"
}

PROMPT_PROVIDED: {{.UserPrompt}}
CATEGORY_SELECTED: {{.Categories}}
JSON_RESPONSE:
`

// conciseTemplate is a shorter variant for models with limited context.
const conciseTemplate = `
Identify and redact these sensitive information types from the text:
{{.Categories}}

Return a JSON with:
1. "detected_sensitive_data": Array of found items with their type, data, category, reason, and redaction
2. "redacted_text": Original text with sensitive information replaced by placeholders

Input: {{.UserPrompt}}
`

var (
	detectionTmpl = template.Must(template.New("detection").Parse(detectionTemplate))
	conciseTmpl   = template.Must(template.New("concise").Parse(conciseTemplate))
)

// data carries the values substituted into a template.
type data struct {
	Categories string
	UserPrompt string
}

// Build renders the detection prompt for the given text. The selected
// categories are resolved through categoryMap to their placeholder tokens;
// unknown categories are skipped.
func Build(text string, categories []string, categoryMap map[string]string) (string, error) {
	return render(detectionTmpl, text, categories, categoryMap)
}

// BuildConcise renders the short-form variant of the detection prompt.
func BuildConcise(text string, categories []string, categoryMap map[string]string) (string, error) {
	return render(conciseTmpl, text, categories, categoryMap)
}

func render(tmpl *template.Template, text string, categories []string, categoryMap map[string]string) (string, error) {
	selected := make([]string, 0, len(categories))
	for _, cat := range categories {
		if placeholder, ok := categoryMap[cat]; ok {
			selected = append(selected, fmt.Sprintf("%s: %s", placeholder, cat))
		}
	}

	var sb strings.Builder
	err := tmpl.Execute(&sb, data{
		Categories: strings.Join(selected, "\n"),
		UserPrompt: text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}

	return sb.String(), nil
}
