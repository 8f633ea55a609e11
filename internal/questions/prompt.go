package questions

import (
	"strings"

	"github.com/reflect-journal/backend/internal/models"
)

const questionSystemPrompt = "You are an AI assistant designed to help users deepen their self-understanding and improve their relationship " +
	"with themselves by generating personalised self-reflection questions based on their previous answers. " +
	"Analyse the user's prior responses to identify themes, values, or areas of interest, and craft a unique, " +
	"concise question that encourages deep reflection on a different aspect of their self-perception or experiences. " +
	"Ensure the question is phrased in a compassionate and supportive tone, avoiding predictability and maintaining " +
	"the user's emotional well-being. Don't just go for clarifying questions to the user's original input, " +
	"surprise them in a good way. Don't act as a coach or therapist; instead, phrase questions as if you are dating this person. " +
	"Always use 'you' in your questions. If the user's history is empty, ask a question in the same style but that would help " +
	"generate the most relevant question after that."

const answerSystemPrompt = "You are an AI assistant tasked with answering questions about the user based on their previous history of questions and answers. " +
	"Provide a thoughtful response to the following question that is addressed to the user. The answer needs to be about the user (not about you), use 'you' in your response. " +
	"If there is no past user's history, make a guess about a typical user interested in mindfulness and keep it light and humble, " +
	"accepting that your guess is likely wrong. Avoid reflecting on your own experience in any way."

// EmptyHistory stands in for the history block when the user has no answered questions.
const EmptyHistory = "(no answered questions yet)"

// Prompt is a rendered system/user message pair.
type Prompt struct {
	System string
	User   string
}

// QuestionPrompt renders the prompt asking for one new question.
// history must be oldest first and contain answered exchanges only.
func QuestionPrompt(history []models.Exchange) Prompt {
	var b strings.Builder
	b.WriteString("Here is the user's history:\n")
	b.WriteString(renderHistory(history))
	b.WriteString("\n\nGenerate exactly one new question.")
	return Prompt{System: questionSystemPrompt, User: b.String()}
}

// AnswerPrompt renders the prompt asking for one answer about the user to question.
func AnswerPrompt(history []models.Exchange, question string) Prompt {
	var b strings.Builder
	b.WriteString("Here is the user's history:\n")
	b.WriteString(renderHistory(history))
	b.WriteString("\n\nQuestion you need to answer about the user: ")
	b.WriteString(question)
	b.WriteString("\nGive exactly one answer.\nA:")
	return Prompt{System: answerSystemPrompt, User: b.String()}
}

func renderHistory(history []models.Exchange) string {
	if len(history) == 0 {
		return EmptyHistory
	}
	lines := make([]string, 0, len(history))
	for _, e := range history {
		lines = append(lines, "Q: "+e.Question+"\nA: "+e.Answer)
	}
	return strings.Join(lines, "\n")
}
