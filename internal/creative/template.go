package creative

import (
	"strings"
)

// Templates are the fixed captions used when generated text is unavailable or rejected.
var Templates = []string{
	"New release! Check out {title}. [18+ only]",
	"Just dropped: {title} in {category}. Watch now! 🔞",
	"Don't miss our latest update: {title}. Link below!",
	"Trending right now in {category}: {title}. 🌶️",
}

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}
