// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package secrets

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Credential is one resolved secret. The value is held in a byte slice so it can be
// zeroed when the run ends; it is never printed by String or fmt verbs.
type Credential struct {
	Name   string
	Expiry *time.Time
	value  []byte
}

// NewCredential builds a credential holding a private copy of value.
func NewCredential(name, value string, expiry *time.Time) *Credential {
	return &Credential{Name: name, Expiry: expiry, value: []byte(value)}
}

// Value returns the secret value. It is empty after Scrub.
func (c *Credential) Value() string { return string(c.value) }

// Expired reports whether the credential has an expiry that lies before now.
func (c *Credential) Expired(now time.Time) bool {
	return c.Expiry != nil && now.After(*c.Expiry)
}

// Scrub overwrites the value in place.
func (c *Credential) Scrub() {
	for i := range c.value {
		c.value[i] = 0
	}
	c.value = nil
}

func (c *Credential) String() string { return fmt.Sprintf("Credential(%s, ***)", c.Name) }

// GoString keeps %#v from dumping the value.
func (c *Credential) GoString() string { return c.String() }

// Credentials is the set of secrets resolved for one run.
type Credentials struct {
	mu    sync.RWMutex
	items map[string]*Credential
}

// NewCredentials returns an empty set.
func NewCredentials() *Credentials {
	return &Credentials{items: map[string]*Credential{}}
}

func (cs *Credentials) put(c *Credential) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.items[c.Name] = c
}

// Get returns the named credential.
func (cs *Credentials) Get(name string) (*Credential, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	c, ok := cs.items[name]
	return c, ok
}

// Value returns the named secret value, or "" when it is not in the set.
func (cs *Credentials) Value(name string) string {
	if c, ok := cs.Get(name); ok {
		return c.Value()
	}
	return ""
}

// Names returns the resolved names, sorted.
func (cs *Credentials) Names() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	names := make([]string, 0, len(cs.items))
	for n := range cs.items {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of credentials.
func (cs *Credentials) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.items)
}

// Scrub zeroes every value and empties the set.
func (cs *Credentials) Scrub() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for name, c := range cs.items {
		c.Scrub()
		delete(cs.items, name)
	}
}
