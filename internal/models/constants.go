package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	StreamDoneMarker = "[DONE]"
	StreamDataPrefix = "data:"

	// ContextSeparator joins ranked chunks inside an assembled context block.
	ContextSeparator = "\n\n---\n\n"
	RelevanceFormat  = "[Relevance: %.2f]\n%s"

	MaxFileSizeMB = 10

	DefaultChatModel      = "gemma3"
	DefaultEmbeddingModel = "mxbai-embed-large"
	EmbeddingDimension    = 1024

	DefaultChunkSize        = 500
	DefaultOverlapSentences = 2
	DefaultTopK             = 3
	DefaultCaptionTopK      = 2

	IVFFlatIndexLists = 100
	IVFFlatIndexName  = "chat_contexts_embedding_idx"

	// PreviewLength bounds the input text carried by an EmbeddingError.
	PreviewLength = 100
)

var AllowedImageExtensions = []string{"png", "jpg", "jpeg", "webp"}

var (
	ExtractionSystemPrompt = `You are a document information extraction expert. Your task is to extract ALL information from the provided image.

Extract and describe:
1. All visible text (headings, labels, values, legends, annotations)
2. All data points and their values
3. Chart/graph types and what they represent
4. Relationships between data elements
5. Any trends, patterns, or insights visible
6. Color coding, symbols, and their meanings
7. Axes, scales, units of measurement
8. Any formulas, equations, or calculations shown
9. Contextual information (titles, dates, sources)

Be exhaustive and detailed. Structure your extraction in clear sections.`

	ExtractionUserPrompt = "Extract all information from this image."

	ChatSystemPromptTemplate = `You are an assistant whose role is to answer user questions about a document using only the provided CONTEXT. Always ground answers in the context. Do not invent facts outside the context. If the context is insufficient, clearly say so and suggest how to obtain the missing information.

CONTEXT FROM DOCUMENT:
%s

Cite the context passages you used. When a passage carries a relevance score, prefer the higher scored passages.`

	NoContextNotice = "(no relevant context was found for this question)"

	CaptionSystemPromptTemplate = `You are a structured reasoning assistant. Follow this format exactly:

PLAN: Provide a short numbered plan of steps you will take.

REASON: Work through the observations, produce reasoning and details.

EVALUATE: Summarize the final conclusion briefly.

If the CONTEXT section is provided, consult it and reference relevant parts.

CONTEXT:
%s

Respond in plain text following PLAN / REASON / EVALUATE sections.`
)
