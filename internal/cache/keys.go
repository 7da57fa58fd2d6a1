package cache

import "fmt"

func JobForHashKey(inputHash string) string {
	return fmt.Sprintf("dedup:%s", inputHash)
}

func RateLimitKey(identifier string) string {
	return fmt.Sprintf("ratelimit:%s", identifier)
}
