package monitor

import (
	"errors"
	"strings"
)

const (
	upcomingPath = "/launch/upcoming"
	inStockPath  = "/launch/in-stock"
)

// ExpandURLs returns url followed by its equivalent listing variants.
// Launch calendars flip a product between an upcoming and an in-stock
// listing, so both are watched.
func ExpandURLs(url string) []string {
	urls := []string{url}
	var variants []string
	if strings.Contains(url, inStockPath) {
		variants = append(variants, strings.Replace(url, inStockPath, upcomingPath, 1))
	}
	if strings.Contains(url, upcomingPath) {
		variants = append(variants, strings.Replace(url, upcomingPath, inStockPath, 1))
	}
	for _, v := range variants {
		if !contains(urls, v) {
			urls = append(urls, v)
		}
	}
	return urls
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// isNetworkError reports whether err looks like a transient network or
// timeout failure worth retrying.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "Client.Timeout") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no route to host") ||
		strings.Contains(errStr, "net::ERR_")
}
