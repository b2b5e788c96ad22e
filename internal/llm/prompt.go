package llm

import (
	"fmt"
	"strings"
)

// AnswerDelimiter is the literal marker the prompt asks the model to place
// before its answer.
const AnswerDelimiter = "Answer:"

const noQuestionPlaceholder = "No question was asked"

const systemPrompt = "You are an expert research assistant. " +
	"Summarize news articles clearly and answer user questions precisely using only the article content. Avoid speculation. " +
	"Only answer a question if one is given. " +
	"Have a sarcastic tone when appropriate, but always be helpful. " +
	"If the user asks for your opinion, make it funny and engaging."

// Message is one chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildMessages returns the system and user messages for one article.
func BuildMessages(articleText, question string) []Message {
	q := strings.TrimSpace(question)
	if q == "" {
		q = noQuestionPlaceholder
	}

	user := fmt.Sprintf(`Here's an article I want you to analyze:

%s

Now, follow these steps:
1. Give a concise **summary** of the article.
2. If the following question is provided, answer it using only the article content. Start the answer on its own line with "%s".

**Question**: %s

Begin your response below:
`, articleText, AnswerDelimiter, q)

	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}
