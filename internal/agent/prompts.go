package agent

import (
	"fmt"
	"strings"

	"github.com/Keyring-Network/gavryn-tutor/internal/knowledge"
)

const (
	RefusalText = "Sorry, I can only answer mathematics-related questions. Please ask a math question!! Articulate Query correctly!!"

	ConfirmWebSearchText = "I couldn't find this in my knowledge base. Would you like me to search the web for an answer?"

	noCategory = "NO Category Provided"
	noFormula  = "No Formula Provided"
)

func DirectPrompt(question string) string {
	return fmt.Sprintf("Student Question: %s\nPlease answer this directly and simply as a math professor, without using any external knowledge base or web search.", question)
}

func VerifiedPrompt(question string, entry knowledge.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Student Question: %s\n\n", question)
	b.WriteString("I found a 'Similar Problem' in my Knowledge Base:\n")
	fmt.Fprintf(&b, "Problem: %s\n", entry.Problem)
	fmt.Fprintf(&b, "Category: %s\n", orDefault(entry.Category, noCategory))
	fmt.Fprintf(&b, "Annotated Formula: %s\n", orDefault(entry.AnnotatedFormula, noFormula))
	fmt.Fprintf(&b, "Linear Formula: %s\n", orDefault(entry.LinearFormula, noFormula))
	fmt.Fprintf(&b, "Solution Approach: %s\n", entry.Rationale)
	b.WriteString("Just apply the formula & approach the correct answer and present it to user in a specified Guiding way.\n")
	b.WriteString("Using this reference, please provide a 'step-by-step' solution to the student's question in simple terms.")
	return b.String()
}

var webRules = []string{
	"If the question is about problem-solving, approach, solution, derivation, or equation expansion, provide a step-by-step solution.",
	"If the question is about theory, concept, definition, mathematicians, or general information, answer in clear points or paragraphs, focusing on clarity and relevance.",
	"Do not repeat or rephrase the web result unnecessarily.",
	"Use the web result only as a reference, not as the main answer.",
	"Present the answer as if you are a knowledgeable math professor, using your own expertise and the web info as support.",
}

func WebPrompt(question string, webResult string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Student Question: %s\n\n", question)
	fmt.Fprintf(&b, "Here is a web search result you can use as a reference:\n%s\n\n", webResult)
	b.WriteString("Combine your own knowledge with the web result to answer the student's question in the most relevant and helpful way.")
	for _, rule := range webRules {
		b.WriteString("\n- ")
		b.WriteString(rule)
	}
	return b.String()
}

func orDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
