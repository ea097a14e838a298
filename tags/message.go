package tags

import "strings"

// StatusMessage renders the post caption for a tag selection.
func StatusMessage(selection []string) string {
	hashtags := make([]string, len(selection))
	for i, tag := range selection {
		hashtags[i] = "#" + tag
	}
	return "." + strings.Join(hashtags, " ")
}
