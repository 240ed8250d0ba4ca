package models

// Reason codes for answerable non-error states
const (
	ReasonNoDocuments = "no_documents"
	ReasonNoResults   = "no_results"
)

// Fixed answers for the reason-code states
const (
	NoDocumentsAnswer = "No documents have been indexed yet. Please add documents first."
	NoResultsAnswer   = "I don't have enough information in the uploaded documents to answer this question. Please upload relevant documents first."
)

const (
	// PreviewChars bounds the chunk text echoed back in a Source
	PreviewChars = 200

	// ExcerptHeaderTemplate delimits retrieved chunks inside the context block
	ExcerptHeaderTemplate = "--- Document Excerpt %d ---"
)

var (
	// SystemPrompt is the system message sent ahead of every generation call
	SystemPrompt = `You are a precise AI assistant that answers questions STRICTLY based on the provided context from uploaded documents.

CRITICAL RULES:
1. ONLY use information from the Context section below
2. Do NOT use any external knowledge or assumptions
3. If the context doesn't contain the answer, respond with: "I don't have enough information in the uploaded documents to answer this question."
4. Quote or reference specific parts of the context when answering
5. Be concise and factual - no speculation or hallucination
6. If you're uncertain, say so clearly`

	RAGPromptTemplate = `You are answering questions using the following document excerpts:

---BEGIN DOCUMENT---
%s
---END DOCUMENT---

Question: %s

Answer (using only the document above):`
)
