package sanitize

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy

	fragmentPolicyOnce sync.Once
	fragmentPolicy     *bluemonday.Policy
)

// textSanitizer strips every element. Script and style bodies are dropped
// along with their tags.
func textSanitizer() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// fragmentSanitizer keeps the user generated content subset (links, emphasis,
// lists, tables, images) and forces rel="nofollow" on links.
func fragmentSanitizer() *bluemonday.Policy {
	fragmentPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowAttrs("class").Globally()
		policy.RequireNoFollowOnLinks(true)
		fragmentPolicy = policy
	})
	return fragmentPolicy
}
