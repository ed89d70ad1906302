package service

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"task-service/internal/model"
)

// command is one optimistic mutation: the rows it writes or removes, the
// notification numbers it claims, and what the touched rows looked like
// before it was applied.
type command struct {
	seq      uint64
	upserts  []model.Task
	removes  []uuid.UUID
	reserve  []string
	snapshot []snapshotEntry
}

type snapshotEntry struct {
	id      uuid.UUID
	index   int
	row     model.Task
	present bool
}

func (c *command) touched() map[uuid.UUID]struct{} {
	ids := make(map[uuid.UUID]struct{}, len(c.upserts)+len(c.removes))
	for _, row := range c.upserts {
		ids[row.ID] = struct{}{}
	}
	for _, id := range c.removes {
		ids[id] = struct{}{}
	}
	return ids
}

// taskCache is the shared in-memory task collection, newest first. Every
// full refetch is overlaid with the commands still in flight, and a refetch
// that started before a commit or rollback is discarded.
type taskCache struct {
	mu        sync.RWMutex
	rows      []model.Task
	loaded    bool
	fetchedAt time.Time
	gen       uint64
	nextSeq   uint64
	pending   []*command
	reserved  map[string]uint64
}

func newTaskCache() *taskCache {
	return &taskCache{reserved: make(map[string]uint64)}
}

func (c *taskCache) list() []model.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Task, len(c.rows))
	for i := range c.rows {
		out[i] = c.rows[i].Clone()
	}
	return out
}

func (c *taskCache) get(id uuid.UUID) (model.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := indexOf(c.rows, id); idx >= 0 {
		return c.rows[idx].Clone(), true
	}
	return model.Task{}, false
}

// findByPhotoURL returns the task holding url in any photo slot.
func (c *taskCache) findByPhotoURL(url string) (model.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.rows {
		for _, u := range c.rows[i].PhotoURLs() {
			if u == url {
				return c.rows[i].Clone(), true
			}
		}
	}
	return model.Task{}, false
}

func (c *taskCache) state() (loaded bool, fetchedAt time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded, c.fetchedAt
}

func (c *taskCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// begin records the snapshot of every row cmd touches and applies it
// optimistically. It fails without side effects when a notification number
// cmd claims is reserved by another pending command or held by another row.
func (c *taskCache) begin(cmd *command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	touched := cmd.touched()
	for _, num := range cmd.reserve {
		if _, taken := c.reserved[num]; taken {
			return notificationNumTaken(num)
		}
		for i := range c.rows {
			row := &c.rows[i]
			if _, own := touched[row.ID]; own {
				continue
			}
			if row.NotificationNum != nil && *row.NotificationNum == num {
				return notificationNumTaken(num)
			}
		}
	}

	c.nextSeq++
	cmd.seq = c.nextSeq
	for _, num := range cmd.reserve {
		c.reserved[num] = cmd.seq
	}

	cmd.snapshot = cmd.snapshot[:0]
	for id := range touched {
		entry := snapshotEntry{id: id, index: indexOf(c.rows, id)}
		if entry.index >= 0 {
			entry.row = c.rows[entry.index].Clone()
			entry.present = true
		}
		cmd.snapshot = append(cmd.snapshot, entry)
	}
	sort.Slice(cmd.snapshot, func(i, j int) bool {
		return cmd.snapshot[i].index < cmd.snapshot[j].index
	})

	c.rows = overlay(c.rows, cmd)
	c.pending = append(c.pending, cmd)
	return nil
}

// commit swaps the optimistic rows of cmd for the rows the backend returned,
// matched by position in cmd.upserts. A temporary row whose server row is
// already cached (a refetch got there first) is dropped.
func (c *taskCache) commit(cmd *command, confirmed []model.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release(cmd)

	for i, up := range cmd.upserts {
		idx := indexOf(c.rows, up.ID)
		if i >= len(confirmed) {
			if idx >= 0 {
				c.rows[idx].Optimistic = false
			}
			continue
		}
		row := confirmed[i].Clone()
		row.Optimistic = false
		existing := indexOf(c.rows, row.ID)
		switch {
		case existing >= 0 && existing != idx:
			c.rows[existing] = row
			if idx >= 0 {
				c.rows = append(c.rows[:idx], c.rows[idx+1:]...)
			}
		case idx >= 0:
			c.rows[idx] = row
		default:
			c.rows = append([]model.Task{row}, c.rows...)
		}
	}
	c.gen++
}

// rollback restores every touched row to its snapshot, at its original
// position, and drops rows cmd introduced.
func (c *taskCache) rollback(cmd *command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release(cmd)

	before := make(map[uuid.UUID]snapshotEntry, len(cmd.snapshot))
	for _, entry := range cmd.snapshot {
		before[entry.id] = entry
	}
	kept := c.rows[:0]
	for _, row := range c.rows {
		if entry, ok := before[row.ID]; ok && !entry.present {
			continue
		}
		kept = append(kept, row)
	}
	c.rows = kept

	for _, entry := range cmd.snapshot {
		if !entry.present {
			continue
		}
		if idx := indexOf(c.rows, entry.id); idx >= 0 {
			c.rows[idx] = entry.row
			continue
		}
		at := entry.index
		if at > len(c.rows) {
			at = len(c.rows)
		}
		c.rows = append(c.rows, model.Task{})
		copy(c.rows[at+1:], c.rows[at:])
		c.rows[at] = entry.row
	}
	c.gen++
}

// replace installs a full refetch taken at generation gen. It reports false
// when a command finished since then; the caller should fetch again.
func (c *taskCache) replace(rows []model.Task, gen uint64, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	next := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		row := r.Clone()
		row.Optimistic = false
		next = append(next, row)
	}
	for _, cmd := range c.pending {
		next = overlay(next, cmd)
	}
	c.rows = next
	c.loaded = true
	c.fetchedAt = at
	return true
}

func (c *taskCache) release(cmd *command) {
	for i, p := range c.pending {
		if p.seq == cmd.seq {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	for _, num := range cmd.reserve {
		if c.reserved[num] == cmd.seq {
			delete(c.reserved, num)
		}
	}
}

func overlay(rows []model.Task, cmd *command) []model.Task {
	if len(cmd.removes) > 0 {
		gone := make(map[uuid.UUID]struct{}, len(cmd.removes))
		for _, id := range cmd.removes {
			gone[id] = struct{}{}
		}
		kept := rows[:0]
		for _, row := range rows {
			if _, ok := gone[row.ID]; !ok {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	var fresh []model.Task
	for _, up := range cmd.upserts {
		row := up.Clone()
		row.Optimistic = true
		if idx := indexOf(rows, row.ID); idx >= 0 {
			rows[idx] = row
			continue
		}
		fresh = append(fresh, row)
	}
	if len(fresh) > 0 {
		rows = append(fresh, rows...)
	}
	return rows
}

func indexOf(rows []model.Task, id uuid.UUID) int {
	for i := range rows {
		if rows[i].ID == id {
			return i
		}
	}
	return -1
}
