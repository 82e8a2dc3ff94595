package agent

import "strings"

var hedgingPhrases = []string{
	"i need to check",
	"let me check",
	"i'll get back to you",
	"i will get back to you",
	"i'll have to confirm",
	"tengo que verificar",
	"déjame verificar",
	"te confirmo luego",
	"мне нужно уточнить",
	"я уточню",
	"ich muss nachsehen",
	"je dois vérifier",
}

// Hedges reports whether reply defers an answer instead of giving one.
func Hedges(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range hedgingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
