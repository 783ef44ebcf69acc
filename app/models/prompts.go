package models

import (
	"fmt"
	"strings"

	"github.com/b1506704/Live2D-AI-Agent/app/tools"
)

const toolsSystemPrompt = `You are an AI assistant with access to the following tools:
%s

When you need to use a tool, respond with a JSON object in this format:
{"tool": "tool_name", "parameters": {"param1": "value1", "param2": "value2"}}

%s`

var languageNames = map[string]string{
	"en": "English",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
	"vi": "Vietnamese",
	"fr": "French",
	"de": "German",
	"es": "Spanish",
}

// BuildToolsPrompt embeds the tool catalog, the directive format and the
// persona into one system message.
func BuildToolsPrompt(catalog []tools.Spec, persona string) string {
	lines := make([]string, 0, len(catalog))
	for _, t := range catalog {
		lines = append(lines, fmt.Sprintf("- %s: %s", t.Name, t.Description))
	}
	return fmt.Sprintf(toolsSystemPrompt, strings.Join(lines, "\n"), persona)
}

// LanguageInstruction is empty for English and for an unset language.
// Unknown codes are passed through to the model verbatim.
func LanguageInstruction(language string) string {
	code := strings.ToLower(strings.TrimSpace(language))
	if code == "" || code == "en" {
		return ""
	}
	if name, ok := languageNames[code]; ok {
		return "Please respond in " + name + "."
	}
	return fmt.Sprintf("Please respond in the language with code '%s'.", language)
}

// LanguageName returns the display name for a code, or the code itself.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
