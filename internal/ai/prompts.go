package ai

// Fixed prompt templates for each writing operation. The input text is the
// only variable part.

const ImprovePrompt = `Improve the following text by:
- Fixing grammatical errors
- Improving clarity and readability
- Preserving the original meaning and tone
- Returning only the improved text without explanations

Text: %s`

const SummarizePrompt = `Write a short summary of the following text. Keep the most important points:

%s`

const OutlinePrompt = `Create a structured outline based on the following text. Use markdown format with headers (# ## ###) and bullet points:

%s`

const ConvertPrompt = `Convert the following text to proper markdown format. Add appropriate headers, formatting and structure:

%s`

const SuggestPrompt = `Give 3-5 concrete suggestions for improving the following text. Format them as a list:

%s`
