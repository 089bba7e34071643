package report

import (
	"strings"

	"github.com/joshsymonds/mailtriage/internal/triage"
)

func domainOf(from string) string {
	addr := strings.ToLower(triage.SenderAddress(from))
	at := strings.LastIndex(addr, "@")
	if at == -1 {
		return ""
	}
	return strings.Trim(addr[at+1:], ". ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func daysFromWindow(days int) int {
	if days <= 0 {
		return 1
	}
	return days
}
