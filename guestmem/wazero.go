package guestmem

import "github.com/tetratelabs/wazero/api"

var _ Memory = (api.Memory)(nil)

// FromModule returns the calling module's memory, or nil if it exports none.
func FromModule(mod api.Module) Memory {
	if mod == nil {
		return nil
	}
	mem := mod.Memory()
	if mem == nil {
		return nil
	}
	return mem
}
