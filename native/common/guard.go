package common

import "errors"

// ErrModulePaused is returned when a guarded module has been paused.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause switches maintained by the operator.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view or an
// empty module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a fixed pause set, typically loaded from configuration.
type StaticPauses map[string]bool

// NewStaticPauses builds a pause view from a list of module names.
func NewStaticPauses(modules []string) StaticPauses {
	set := make(StaticPauses, len(modules))
	for _, name := range modules {
		if name == "" {
			continue
		}
		set[name] = true
	}
	return set
}

// IsPaused implements the PauseView interface.
func (s StaticPauses) IsPaused(module string) bool { return s[module] }
