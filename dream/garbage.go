package dream

import "strings"

// DefaultGarbagePhrases mark memories that record the agent failing rather
// than anything worth remembering: apologies, "I don't remember", and model
// self-disclosure.
var DefaultGarbagePhrases = []string{
	"as an ai",
	"as a language model",
	"i am an ai model",
	"i'm an ai model",
	"i don't remember",
	"i do not remember",
	"i can't recall",
	"i cannot recall",
	"my memory is still learning",
	"my memory feature is still learning",
	"i'm very sorry",
	"i am unable to answer",
	"i'm unable to answer",
	"i am unable to provide",
	"记忆功能还在学习中",
	"记忆系统正在学习",
	"很抱歉",
	"我无法",
	"作为ai",
	"我是ai模型",
	"我记不清了",
	"无法回答",
	"无法提供",
	"不具备",
	"不支持",
	"不了解",
}

// isGarbage reports whether text contains one of phrases, ignoring case.
func isGarbage(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
