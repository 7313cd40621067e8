package runtime

import (
	"fmt"
	"sync"
)

// Phase is a type record's construction progress.
type Phase uint32

const (
	PhaseUnloaded Phase = iota
	PhaseID
	PhaseShape
	PhaseConstructed
)

var phaseNames = [...]string{
	PhaseUnloaded:    "Unloaded",
	PhaseID:          "Id",
	PhaseShape:       "Shape",
	PhaseConstructed: "Constructed",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint32(p))
}

// PhaseEvent reports a record moving from one phase to the next.
type PhaseEvent struct {
	Record *TypeRecord
	From   Phase
	To     Phase
}

// Observer receives phase transitions.
type Observer interface {
	OnPhase(PhaseEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(PhaseEvent)

// OnPhase calls f.
func (f ObserverFunc) OnPhase(e PhaseEvent) { f(e) }

type observers struct {
	list []observerEntry
	next int
	mu   sync.RWMutex
}

type observerEntry struct {
	obs Observer
	id  int
}

// add registers obs and returns a function that removes it. Entries are
// matched by token since ObserverFunc values are not comparable.
func (o *observers) add(obs Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := o.next
	o.list = append(o.list, observerEntry{obs: obs, id: id})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, e := range o.list {
			if e.id == id {
				o.list = append(o.list[:i:i], o.list[i+1:]...)
				return
			}
		}
	}
}

func (o *observers) notify(e PhaseEvent) {
	o.mu.RLock()
	list := o.list
	o.mu.RUnlock()
	for _, entry := range list {
		entry.obs.OnPhase(e)
	}
}
