package multiplexer

import (
	"github.com/kandobyte/mcpbox/pkg/log"
)

// Reconcile brings the set of running children in line with specs: children
// no longer present are shut down and removed from the routing indexes,
// new children are spawned and indexed, and children present in both sets
// are left untouched. This is the multiplexer-side half of the optional
// config-watch reload (spec §6 expansion), generalizing the teacher's
// FileBasedConfiguration.Watch reload loop from "diff one server's
// capabilities" to "diff the whole child set".
func (m *Multiplexer) Reconcile(specs []Spec) {
	wanted := make(map[string]Spec, len(specs))
	for _, s := range specs {
		wanted[s.Name] = s
	}

	m.mu.Lock()
	var toRemove []*Child
	for name, c := range m.children {
		if _, ok := wanted[name]; !ok {
			toRemove = append(toRemove, c)
			delete(m.children, name)
		}
	}
	m.mu.Unlock()

	for _, c := range toRemove {
		if err := c.shutdown(); err != nil {
			log.Warnf("multiplexer: child %q exited with error during reconcile: %v", c.spec.Name, err)
		}
	}
	if len(toRemove) > 0 {
		m.mu.Lock()
		m.rebuildIndexesLocked()
		m.mu.Unlock()
		log.Logf("reconcile: removed %d child(ren)", len(toRemove))
	}

	m.mu.RLock()
	var toAdd []Spec
	for _, s := range specs {
		if _, ok := m.children[s.Name]; !ok {
			toAdd = append(toAdd, s)
		}
	}
	m.mu.RUnlock()

	added := 0
	for _, s := range toAdd {
		child := newChild(s, m.mcpDebug)
		if err := m.bringUp(child); err != nil {
			child.fail(err)
			log.Warnf("reconcile: child %q failed to start: %v", s.Name, err)
			continue
		}
		m.mu.Lock()
		m.children[s.Name] = child
		m.indexLocked(child)
		m.mu.Unlock()
		added++
	}

	// specs is the new source of truth for catalogue-merge order, per
	// spec §4.5's "insertion order" invariant.
	order := make([]string, 0, len(specs))
	for _, s := range specs {
		order = append(order, s.Name)
	}
	m.mu.Lock()
	m.order = order
	m.mu.Unlock()

	log.Logf("reconcile: added %d child(ren)", added)
}

// rebuildIndexesLocked recomputes the routing indexes from the current
// children map. Caller must hold m.mu for writing.
func (m *Multiplexer) rebuildIndexesLocked() {
	m.toolIdx = make(map[string]string)
	m.resIdx = make(map[string]string)
	m.promptIdx = make(map[string]string)
	for _, c := range m.children {
		if c.State() == Ready {
			m.indexLocked(c)
		}
	}
}
