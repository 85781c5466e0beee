package models

// SearchHistoryLimit caps the number of stored search keywords per user.
const SearchHistoryLimit = 20

// PushSearchHistory moves keyword to the front of history, dropping any earlier occurrence and
// everything past [SearchHistoryLimit]. The input slice is not modified.
func PushSearchHistory(history []string, keyword string) []string {
	out := make([]string, 0, min(len(history)+1, SearchHistoryLimit))
	out = append(out, keyword)
	for _, h := range history {
		if len(out) == SearchHistoryLimit {
			break
		}
		if h != keyword {
			out = append(out, h)
		}
	}
	return out
}
