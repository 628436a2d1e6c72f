package reasoning

import "fmt"

const analyzePrompt = `You are a UI state analyzer. Analyze screenshots of web applications to understand:
1. What UI elements are visible (buttons, forms, modals, etc.)
2. What state the application is in (loading, form, list, success, etc.)
3. What actions are available to the user
4. Whether this is a significant state that should be captured

Return a JSON object with your analysis.

Analyze this screenshot%s.
Describe the UI state, visible elements, and what actions appear to be available.`

const capturePrompt = `You are a UI workflow analyzer. Determine if a UI state is significant enough to capture in a workflow tutorial.
Significant states include:
- Initial page loads
- Modal/dialog appearances
- Form states
- Success/confirmation messages
- Navigation between major sections
- Filter/search results

Return only "YES" or "NO".

Based on this analysis: %q, should this UI state be captured? Previous state: %s`

const nextStepPrompt = `You are a web automation assistant. Analyze screenshots and provide the next steps to complete a task.
For "creating a project" tasks, you MUST capture these specific states:
1. Project list page (initial state)
2. "Create Project" button or equivalent
3. Create/new project modal or dialog
4. Form fields being filled
5. Success confirmation or project created state

IMPORTANT: Continue until you see a project actually created or clear success message. Don't stop at login pages.

Task: %s

What is the next step to complete this task? Return your response as a JSON object with these fields:
- nextAction: (string) The action to take (click, fill, wait, navigate)
- selector: (string, optional) CSS selector for the element
- text: (string, optional) Text to click or type
- description: (string) Description of what this step does
- url: (string, optional) URL to navigate to
- waitTime: (number, optional) Time to wait in milliseconds

Example response:
{"nextAction": "click", "text": "Create Project", "description": "Click the Create Project button"}`

func buildAnalyzePrompt(focus string) string {
	suffix := ""
	if focus != "" {
		suffix = " in the context of: " + focus
	}
	return fmt.Sprintf(analyzePrompt, suffix)
}

func buildCapturePrompt(analysis, previous string) string {
	if previous == "" {
		previous = "none"
	}
	return fmt.Sprintf(capturePrompt, analysis, previous)
}

func buildNextStepPrompt(task string) string {
	return fmt.Sprintf(nextStepPrompt, task)
}
