package kb

import (
	"fmt"
	"strings"
)

// DefaultHookFrameworks are the hook/patch frameworks known without a database.
var DefaultHookFrameworks = []string{
	"enginefixes.dll",
	"ssedisplaytweaks.dll",
	"po3_tweaks.dll",
	"hdtssephysics.dll",
	"hdtsmp64.dll",
	"storageutil.dll",
	"crashlogger.dll",
	"crashloggersse.dll",
	"sl.interposer.dll",
	"skse64.dll",
	"skse64_loader.dll",
	"skse64_steam_loader.dll",
}

type hookFrameworksDoc struct {
	Frameworks []struct {
		DLL  string `json:"dll"`
		Name string `json:"name"`
	} `json:"frameworks"`
}

// HookFrameworks is the set of DLLs that install hooks into many code paths.
// Such a module on top of a stack is more often the victim than the cause.
type HookFrameworks struct {
	dlls map[string]bool
}

// NewHookFrameworks builds a set from names, matched case-insensitively.
func NewHookFrameworks(names ...string) *HookFrameworks {
	h := &HookFrameworks{dlls: make(map[string]bool, len(names))}
	for _, n := range lowerAll(names) {
		h.dlls[n] = true
	}
	return h
}

// DefaultHookFrameworkSet returns the built-in set.
func DefaultHookFrameworkSet() *HookFrameworks {
	return NewHookFrameworks(DefaultHookFrameworks...)
}

// LoadHookFrameworks reads a hook-framework list. A valid file replaces the
// defaults rather than extending them.
func LoadHookFrameworks(path string) (*HookFrameworks, error) {
	var doc hookFrameworksDoc
	if err := loadDocument(path, &doc); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc.Frameworks))
	for _, fw := range doc.Frameworks {
		names = append(names, fw.DLL)
	}
	h := NewHookFrameworks(names...)
	if len(h.dlls) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return h, nil
}

// With returns a copy extended by extra names (from configuration). A nil
// set is extended from the defaults.
func (h *HookFrameworks) With(extra ...string) *HookFrameworks {
	if h == nil {
		h = defaultSet
	}
	out := NewHookFrameworks(extra...)
	for n := range h.dlls {
		out.dlls[n] = true
	}
	return out
}

// Len returns the number of listed DLLs.
func (h *HookFrameworks) Len() int {
	if h == nil {
		return 0
	}
	return len(h.dlls)
}

// Contains reports whether filename is a hook framework. The script extender
// and its runtime builds (skse64_1_6_1170.dll) always are, whatever the list says.
// A nil set falls back to the defaults.
func (h *HookFrameworks) Contains(filename string) bool {
	lower := strings.ToLower(filename)
	if IsScriptExtender(lower) {
		return true
	}
	if h == nil {
		return defaultSet.dlls[lower]
	}
	return h.dlls[lower]
}

var defaultSet = DefaultHookFrameworkSet()

// IsScriptExtender matches skse64.dll, its loaders, and skse64_<digit>...dll.
func IsScriptExtender(filename string) bool {
	lower := strings.ToLower(filename)
	switch lower {
	case "skse64.dll", "skse64_loader.dll", "skse64_steam_loader.dll":
		return true
	}
	const prefix = "skse64_"
	if !strings.HasPrefix(lower, prefix) || !strings.HasSuffix(lower, ".dll") {
		return false
	}
	if len(lower) <= len(prefix)+4 {
		return false
	}
	c := lower[len(prefix)]
	return c >= '0' && c <= '9'
}
