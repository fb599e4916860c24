package treatment

import (
	"regexp"
	"strings"
	"sync"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// ValidEmail reports whether addr looks like a deliverable address.
func ValidEmail(addr string) bool {
	return emailPattern.MatchString(strings.TrimSpace(addr))
}

// RecipientList holds validated, de-duplicated addresses. Validation happens
// on Add, so Send never sees a bad or repeated address.
type RecipientList struct {
	mu    sync.Mutex
	addrs []string
}

// NewRecipientList rebuilds a list, silently dropping invalid or repeated entries.
func NewRecipientList(addrs ...string) *RecipientList {
	l := &RecipientList{}
	for _, a := range addrs {
		_, _ = l.Add(a)
	}
	return l
}

// Add validates and appends addr, returning the normalized form.
func (l *RecipientList) Add(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !emailPattern.MatchString(addr) {
		return "", ErrInvalidEmail
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.addrs {
		if strings.EqualFold(existing, addr) {
			return "", ErrDuplicateRecipient
		}
	}
	l.addrs = append(l.addrs, addr)
	return addr, nil
}

func (l *RecipientList) Remove(addr string) bool {
	addr = strings.TrimSpace(addr)
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.addrs {
		if strings.EqualFold(existing, addr) {
			l.addrs = append(l.addrs[:i:i], l.addrs[i+1:]...)
			return true
		}
	}
	return false
}

// Addresses returns a copy in insertion order.
func (l *RecipientList) Addresses() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.addrs...)
}

func (l *RecipientList) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.addrs)
}
