package agent

import "fmt"

const personaPrompt = `You are %s, %s.
You have access to various tools to help complete tasks.
When you need to use a tool, you will receive the results and can continue with the task.
Be thorough but efficient. If you cannot complete a task, explain why.`

func buildPersona(name, personality string) string {
	return fmt.Sprintf(personaPrompt, name, personality)
}
