package ratelimit

import (
	"strings"
	"time"
)

// Rule caps POSTs to one path.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Rules are the per-path POST limits.
var Rules = map[string]Rule{
	"/login":                  {Limit: 12, Window: 60 * time.Second},
	"/inquiry":                {Limit: 20, Window: 300 * time.Second},
	"/apply":                  {Limit: 20, Window: 300 * time.Second},
	"/landlord/tenant/invite": {Limit: 30, Window: 300 * time.Second},
	"/manager/tenant/invite":  {Limit: 30, Window: 300 * time.Second},
}

// KeyFor builds the bucket key for path. Login buckets include the submitted
// username; public forms key on IP; everything else keys on the account when
// signed in.
func KeyFor(path, ip, username, account string) string {
	switch path {
	case "/login":
		return "login:" + ip + ":" + strings.ToLower(strings.TrimSpace(username))
	case "/inquiry", "/apply":
		return path + ":" + ip
	}
	if account != "" {
		return path + ":" + account
	}
	return path + ":" + ip
}

// Check applies the rule for path, if any.
func Check(l Limiter, path, ip, username, account string) Decision {
	rule, ok := Rules[path]
	if !ok {
		return Decision{}
	}
	return l.Allow(KeyFor(path, ip, username, account), rule.Limit, rule.Window)
}
