package research

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"scout/internal/llm"
)

const noAnswerMessage = "I apologize, but I cannot find relevant information in the research content to answer your question."

// StartConversationMode runs the post-research question loop against the
// session document. Only available after termination produced a summary.
func (c *Controller) StartConversationMode() error {
	if !c.ResearchComplete() {
		return ErrNotRunning
	}

	c.ui.UpdateOutput("\nEntering conversation mode. Ask questions about the research.")
	c.ui.UpdateOutput("Type 'quit' to exit.\n")

	for {
		question, ok := c.ui.GetInput("Your question: ")
		if !ok {
			return nil
		}
		question = strings.TrimSpace(question)
		if question == "" {
			continue
		}
		if strings.EqualFold(question, "quit") || strings.EqualFold(question, "exit") {
			c.ui.UpdateOutput("Exiting conversation mode.")
			return nil
		}

		answer, err := c.GenerateConversationResponse(context.Background(), question)
		if err != nil {
			c.ui.UpdateOutput("Error generating response: " + err.Error())
			continue
		}
		c.ui.UpdateOutput("\n" + answer + "\n")
	}
}

// GenerateConversationResponse answers one question grounded in the full
// research document and its summary. The document is reloaded from disk when
// the in-memory copy is missing, so conversation survives a controller that
// was rebuilt after termination.
func (c *Controller) GenerateConversationResponse(ctx context.Context, question string) (string, error) {
	c.mu.RLock()
	content := c.researchContent
	summary := c.researchSummary
	c.mu.RUnlock()

	if strings.TrimSpace(content) == "" {
		loaded, err := c.store.ReadAll()
		if err != nil {
			return "", err
		}
		content = loaded
		c.mu.Lock()
		c.researchContent = loaded
		c.mu.Unlock()
	}

	answer, err := c.client.Generate(ctx,
		conversationPrompt(content, summary, question),
		llm.Options{MaxTokens: 1000, Temperature: 0.7})
	if err != nil {
		c.log.Warn("conversation response failed", zap.Error(err))
		return "", err
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return noAnswerMessage, nil
	}
	return answer, nil
}
