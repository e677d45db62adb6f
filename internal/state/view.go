package state

import "shuttle/internal/phase"

// PhaseView is a read-only copy of one phase's flags.
type PhaseView struct {
	Starting        bool   `json:"starting"`
	ProcessingBatch bool   `json:"processing_batch"`
	Initialized     bool   `json:"initialized"`
	PollTask        string `json:"poll_task,omitempty"`
}

// View is a point-in-time copy of the Store for status reporting.
type View struct {
	Phases                  map[phase.Phase]PhaseView `json:"phases"`
	InactiveProgressCounter int                       `json:"inactive_progress_counter"`
	LastProgressValue       int                       `json:"last_progress_value"`
}

// Snapshot copies the current state. Every known phase is present even when
// it has never been touched.
func (s *Store) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := View{
		Phases:                  make(map[phase.Phase]PhaseView, len(phase.All())),
		InactiveProgressCounter: s.inactiveProgress,
		LastProgressValue:       s.lastProgress,
	}
	for _, p := range phase.All() {
		view.Phases[p] = PhaseView{}
	}
	for p, flags := range s.phases {
		pv := PhaseView{
			Starting:        flags.starting,
			ProcessingBatch: flags.processingBatch,
			Initialized:     flags.initialized,
		}
		if flags.interval != nil {
			pv.PollTask = flags.interval.Name
		}
		view.Phases[p] = pv
	}
	return view
}
