package analyzer

import "fmt"

// Prompt is the instruction pair sent to a model for one operation.
type Prompt struct {
	System string
	User   string
	// Structured is true when the response must be JSON.
	Structured bool
}

func analyzerPrefix(lang Language) string {
	return fmt.Sprintf("You are an expert text analyzer. The review is written in %s. Ensure the entire output is strictly valid JSON format.", lang)
}

// SentimentPrompt asks for {"sentiment","confidence_score"}.
func SentimentPrompt(req Request) Prompt {
	return Prompt{
		System:     analyzerPrefix(req.Language) + " Your task is to classify the overall sentiment.",
		User:       fmt.Sprintf("Analyze the following customer review and determine its overall sentiment: %q", req.Review),
		Structured: true,
	}
}

// SummaryPrompt asks for a free-text summary of at most two sentences.
func SummaryPrompt(req Request) Prompt {
	return Prompt{
		System: fmt.Sprintf("You are an expert review summarization engine. The review is written in %s. Ensure the summary is highly accurate and strictly limited to two sentences.", req.Language),
		User:   fmt.Sprintf("Provide a concise, 1-2 sentence summary of the following customer review: %q", req.Review),
	}
}

// AspectsPrompt asks for a JSON array of {"topic","sentiment"}.
func AspectsPrompt(req Request) Prompt {
	return Prompt{
		System:     analyzerPrefix(req.Language) + " Your task is to extract aspects and their specific sentiment.",
		User:       fmt.Sprintf("Analyze the following review and extract 3 to 5 key aspects. For each aspect, provide its specific sentiment: %q", req.Review),
		Structured: true,
	}
}

// ReplyPrompt asks for a customer-service reply in the review's language.
// A positive prior gets a grateful reply; anything else an apologetic one.
func ReplyPrompt(req Request, prior Label) Prompt {
	system := fmt.Sprintf("You are an empathetic customer service agent. The response must be in %s. Write a brief, apologetic, and solution-focused reply to the customer's negative or neutral review. Mention fixing the specific issue if possible. Do not exceed 4 sentences.", req.Language)
	if prior == Positive {
		system = fmt.Sprintf("You are a friendly customer service agent. The response must be in %s. Write a brief, grateful, and encouraging reply to the customer's positive review. Do not exceed 3 sentences.", req.Language)
	}
	return Prompt{
		System: system,
		User:   fmt.Sprintf("Draft a customer service response to the following review: %q", req.Review),
	}
}
