package research

import "fmt"

// Prompt builders are pure functions of their inputs so they can be tested
// without a live model. User-controlled text is embedded verbatim; the
// summary prompt deliberately honors instructions contained in the original
// query.

const analysisInsistence = "\n\nIMPORTANT: You MUST provide exactly 5 research areas with priorities. This is crucial."

func analysisPrompt(originalQuery string) string {
	return fmt.Sprintf(`You must select exactly 5 areas to investigate in order to explore and gather information to answer the research question:
%q

You MUST provide exactly 5 areas numbered 1-5. Each must have a priority, and you must assign only one priority per area.
Assign priority based on how likely investigating the area is to provide information that directly answers %q, with 5 being most likely and 1 being least.
Follow this EXACT format without any deviations or additional text:

1. [First research topic]
Priority: [number 1-5]

2. [Second research topic]
Priority: [number 1-5]

3. [Third research topic]
Priority: [number 1-5]

4. [Fourth research topic]
Priority: [number 1-5]

5. [Fifth research topic]
Priority: [number 1-5]`, originalQuery, originalQuery)
}

func queryPrompt(area, originalQuery string) string {
	return fmt.Sprintf(`In order to research this query/topic:

Context: %s

Base a search query to investigate the following research focus, which is related to the original query/topic:

Area: %s

Create a search query that will yield specific search results directly relevant to the focus area.
Format your response EXACTLY like this:

Search query: [your 2-5 word query]
Time range: [d/w/m/y/none]

Do not provide any additional information or explanation. The time range restricts results by recency: d is within the last day, w the last week, m the last month, y the last year, and none is results from any time. Select exactly one, using only the corresponding letter. Many searches will not require a time range; use your judgement based on the research focus.`, originalQuery, area)
}

func assessmentPrompt(originalQuery, content string) string {
	return fmt.Sprintf(`Based on the following research content, assess whether the original query %q can be answered sufficiently with the collected information.

Research Content:
%s

Instructions:
1. If the research content provides enough information to answer the original query in detail, respond with: "The research is sufficient to answer the query."
2. If not, respond with: "The research is insufficient and it would be advisable to continue gathering information."
3. Do not provide any additional information or details.

Assessment:`, originalQuery, content)
}

func summaryPrompt(originalQuery, content string) string {
	return fmt.Sprintf(`Analyze the following content to provide a comprehensive research summary and a response to the user's original query %q, ensuring that you conclusively answer the query in detail:

Research Content:
%s

Important Instructions:
> Summarize the research findings that are relevant to the original topic/question: %q
> Ensure that in your summary you directly answer the original question/topic conclusively to the best of your ability in detail.
> Read the original topic/question again %q and abide by any additional instructions that it contains, exactly as instructed, in your summary; otherwise provide it normally should it not have any specific instructions.

Summary:`, originalQuery, content, originalQuery, originalQuery)
}

func conversationPrompt(content, summary, question string) string {
	if summary == "" {
		summary = "No summary available"
	}
	return fmt.Sprintf(`Based on the following research content and summary, please answer this question:

Research Content:
%s

Research Summary:
%s

Question: %s

You have 2 sets of instructions, the applied set and the unapplied set. The applied set should be followed if the question directly relates to the research content; anything other than direct questions about the content of the research results in you following the unapplied set instead.

Applied:

Instructions:
1. Answer based ONLY on the research content provided above if asked a question about your research or that content.
2. If the information requested isn't in the research, clearly state that it isn't in the content you gathered.
3. Be direct and specific in your response. Do not directly cite research unless specifically asked to; be concise and give direct answers to questions based on the research, unless instructed otherwise.

Unapplied:

Instructions:
1. Do not make up anything that isn't actually true.
2. Respond directly to the user's question in an honest and thoughtful manner.
3. Disregard rules in the applied set for queries not DIRECTLY related to the research; queries about the research process or what you remember about the research also use the unapplied set.

Answer:`, content, summary, question)
}
