package llm

import (
	"fmt"
	"strings"
)

const analyzeSystemPrompt = `You are an AI assistant that analyzes user feedback for product managers.
Analyze the following comment and return a JSON object with:
- "sentiment_score": a number between -1.0 (negative) and 1.0 (positive).
- "category": one of "bug", "feature_request", "question", or "general".
- "priority_score": a number between 0.0 (low) and 1.0 (high) based on urgency and impact.
- "actionable_summary": a 1-sentence summary of what should be done.
- "keywords": a list of up to 3 key topics.

Return ONLY valid JSON.`

const reportSystemPrompt = `You are an Elite Product Strategist and Data Analyst. Your goal is to transform raw community feedback into a high-impact, professional Community Intelligence Report.

STRICT FORMATTING RULES:
1. Use professional, data-centric language.
2. Use Markdown headers (##, ###) for clear separation.
3. Keep it punchy but comprehensive.
4. Avoid generic filler; cite specific patterns found in the feedback.

REQUIRED SECTIONS:
- ## 📊 EXECUTIVE SUMMARY
- ## 📈 SENTIMENT PULSE
- ## 🔥 HIGH-RESONANCE ISSUES
- ## 🚀 GROWTH OPPORTUNITIES
- ## 🛠️ STRATEGIC ROADMAP`

const codegenSystemPrompt = `You are an autonomous coding agent.
Your goal is to generate file contents to complete the task.
You must output ONLY valid JSON.
Format: { "files": [ { "path": "...", "content": "..." } ] }`

// reportCommentLimit caps how many comments feed one report prompt.
const reportCommentLimit = 50

// treeLineLimit caps how many file-tree entries feed one codegen prompt.
const treeLineLimit = 300

func analyzeMessages(text string) []Message {
	return []Message{
		{Role: "system", Content: analyzeSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Comment: %q", text)},
	}
}

func reportMessages(comments []string) []Message {
	if len(comments) > reportCommentLimit {
		comments = comments[:reportCommentLimit]
	}
	var b strings.Builder
	for _, c := range comments {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	return []Message{
		{Role: "system", Content: reportSystemPrompt},
		{Role: "user", Content: "Process the following feedback signals into a structured report:\n" + b.String()},
	}
}

func codegenMessages(task string, fileTree []string) []Message {
	if len(fileTree) > treeLineLimit {
		fileTree = fileTree[:treeLineLimit]
	}
	user := fmt.Sprintf("Task: %s\n\nRepository Structure:\n%s\n\nGenerate the JSON/code now.",
		task, strings.Join(fileTree, "\n"))
	return []Message{
		{Role: "system", Content: codegenSystemPrompt},
		{Role: "user", Content: user},
	}
}

// stopSequences terminate generation on ChatML-tuned local models. The
// Anthropic backend passes them through harmlessly.
var stopSequences = []string{"<|im_end|>"}
