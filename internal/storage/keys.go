package storage

import "strings"

// keyspace describes the key layout shared by both key-value backends. The parts that differ
// between backends are fields; everything under the "u:{user}:" prefix is common.
type keyspace struct {
	searchHistorySuffix string
	skipConfigPrefix    func(username string) string
	adminConfig         string
}

var (
	kvrocksKeys = keyspace{
		searchHistorySuffix: "search_history",
		skipConfigPrefix:    func(u string) string { return userPrefix(u) + "skip_config:" },
		adminConfig:         "admin_config",
	}

	redisKeys = keyspace{
		searchHistorySuffix: "sh",
		skipConfigPrefix:    func(u string) string { return "katelyatv:skip_config:" + u + ":" },
		adminConfig:         "admin:config",
	}
)

func userPrefix(username string) string { return "u:" + username + ":" }

func (ks keyspace) playRecordPrefix(username string) string { return userPrefix(username) + "pr:" }
func (ks keyspace) playRecord(username, key string) string  { return ks.playRecordPrefix(username) + key }
func (ks keyspace) favoritePrefix(username string) string   { return userPrefix(username) + "fav:" }
func (ks keyspace) favorite(username, key string) string    { return ks.favoritePrefix(username) + key }
func (ks keyspace) skipConfig(username, key string) string  { return ks.skipConfigPrefix(username) + key }
func (ks keyspace) settings(username string) string         { return userPrefix(username) + "settings" }

func (ks keyspace) searchHistory(username string) string {
	return userPrefix(username) + ks.searchHistorySuffix
}

// Kvrocks account layout: one JSON record per user plus a global index set.
const kvrocksUserListKey = "user_list"

func kvrocksAccountKey(username string) string { return "user:" + username }

// Redis account layout: bare values under the user prefix, discovered by pattern.
const redisPasswordPattern = "u:*:pwd"

func redisPasswordKey(username string) string        { return userPrefix(username) + "pwd" }
func redisCreatedAtKey(username string) string       { return userPrefix(username) + "created_at" }
func redisSkipConfigIndexKey(username string) string { return "katelyatv:skip_configs:" + username }

// redisUsernameFromPasswordKey extracts the username from a "u:{user}:pwd" key.
// Usernames never contain ':', so a match like "u:bob:pr:src+x:pwd" is a data key, not an account.
func redisUsernameFromPasswordKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "u:")
	if !ok {
		return "", false
	}
	username, ok := strings.CutSuffix(rest, ":pwd")
	if !ok || username == "" || strings.Contains(username, ":") {
		return "", false
	}
	return username, true
}

// prefixPattern builds a SCAN MATCH pattern for every key starting with prefix.
// Glob metacharacters in the prefix (usernames are user input) are escaped.
func prefixPattern(prefix string) string {
	return globEscaper.Replace(prefix) + "*"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
