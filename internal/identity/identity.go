// Package identity resolves uid/gid to user/group names for tar headers,
// caching lookups process-locally (spec.md §9 Design Note: "Global mutable
// state... User/group lookups should be abstracted behind a cacheable
// lookup interface with clear process-local lifetime"). No library in the
// example pack performs uid/gid name resolution, so this wraps the
// standard library's os/user.
package identity

import (
	"strconv"
	"sync"

	"os/user"

	"golang.org/x/xerrors"
)

// Cache resolves uid/gid to names, memoizing successful lookups for the
// lifetime of one process (a coordinator or one worker rank). A failed
// lookup is not cached.
type Cache struct {
	mu     sync.Mutex
	users  map[uint32]string
	groups map[uint32]string
}

// NewCache returns an empty, ready-to-use Cache.
func NewCache() *Cache {
	return &Cache{
		users:  make(map[uint32]string),
		groups: make(map[uint32]string),
	}
}

// UserName implements tarfmt.NameResolver.
func (c *Cache) UserName(uid uint32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.users[uid]; ok {
		return name, nil
	}
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return "", xerrors.Errorf("looking up uid %d: %w", uid, err)
	}
	c.users[uid] = u.Username
	return u.Username, nil
}

// GroupName implements tarfmt.NameResolver.
func (c *Cache) GroupName(gid uint32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.groups[gid]; ok {
		return name, nil
	}
	g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10))
	if err != nil {
		return "", xerrors.Errorf("looking up gid %d: %w", gid, err)
	}
	c.groups[gid] = g.Name
	return g.Name, nil
}
