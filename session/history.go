package session

import "github.com/pagemark/pagemark/annot"

// snapshot records the whole pending list as one undo step. Any new
// mutation truncates the redo tail first, giving linear history.
func (s *Session) snapshot() {
	s.history = append(s.history[:s.cursor+1], annot.CloneList(s.pending))
	s.cursor = len(s.history) - 1
}

// Undo steps back one snapshot. No-op at the initial empty state.
func (s *Session) Undo() {
	if s.cursor == 0 {
		return
	}
	s.cursor--
	s.restore()
}

// Redo steps forward one snapshot. No-op at the newest state.
func (s *Session) Redo() {
	if s.cursor >= len(s.history)-1 {
		return
	}
	s.cursor++
	s.restore()
}

// CanUndo reports whether Undo would change state.
func (s *Session) CanUndo() bool { return s.cursor > 0 }

// CanRedo reports whether Redo would change state.
func (s *Session) CanRedo() bool { return s.cursor < len(s.history)-1 }

func (s *Session) restore() {
	s.pending = annot.CloneList(s.history[s.cursor])
	s.sel = nil
	s.drag = nil
	s.draw = nil
}
