package engine

import (
	"path"
	"sort"
	"strings"

	"github.com/ftahirops/xtriage/kb"
	"github.com/ftahirops/xtriage/model"
)

// systemDLLs are OS and runtime libraries that sit on nearly every stack.
var systemDLLs = map[string]bool{
	"kernelbase.dll":     true,
	"ntdll.dll":          true,
	"kernel32.dll":       true,
	"ucrtbase.dll":       true,
	"msvcp140.dll":       true,
	"vcruntime140.dll":   true,
	"vcruntime140_1.dll": true,
	"concrt140.dll":      true,
	"user32.dll":         true,
	"gdi32.dll":          true,
	"combase.dll":        true,
	"ole32.dll":          true,
	"ws2_32.dll":         true,
	"win32u.dll":         true,
}

var systemDirs = []string{
	`\windows\system32\`,
	`\windows\syswow64\`,
	`\windows\winsxs\`,
	`\systemroot\system32\`,
}

var gameExecutables = map[string]bool{
	"skyrimse.exe": true,
	"skyrimae.exe": true,
	"skyrimvr.exe": true,
	"skyrim.exe":   true,
}

// IsSystemModule reports whether a module is part of the OS, by name or by
// its install directory.
func IsSystemModule(filename, modulePath string) bool {
	if systemDLLs[strings.ToLower(filename)] {
		return true
	}
	lower := strings.ToLower(modulePath)
	for _, d := range systemDirs {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// IsGameExe reports whether filename is one of the game executables.
func IsGameExe(filename string) bool {
	return gameExecutables[strings.ToLower(filename)]
}

// InferModName extracts <Name> from a mod-manager path "...\mods\<Name>\...".
func InferModName(modulePath string) string {
	const needle = `\mods\`
	pos := strings.Index(strings.ToLower(modulePath), needle)
	if pos < 0 {
		return ""
	}
	rest := modulePath[pos+len(needle):]
	end := strings.IndexByte(rest, '\\')
	if end <= 0 {
		return ""
	}
	return rest[:end]
}

// baseName returns the file name of a Windows or slash-separated path.
func baseName(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return path.Base(p)
}

// ModuleClassifier flags modules as system, game executable or hook framework.
type ModuleClassifier struct {
	hooks *kb.HookFrameworks
}

// NewModuleClassifier uses hooks as the framework list; nil means the defaults.
func NewModuleClassifier(hooks *kb.HookFrameworks) *ModuleClassifier {
	return &ModuleClassifier{hooks: hooks}
}

// IsHookFramework reports whether filename is a known hook framework.
func (c *ModuleClassifier) IsHookFramework(filename string) bool {
	var hooks *kb.HookFrameworks
	if c != nil {
		hooks = c.hooks
	}
	return hooks.Contains(filename)
}

// Classify returns a copy of mods with classification flags and inferred mod
// names filled in, sorted by base address.
func (c *ModuleClassifier) Classify(mods []model.Module) []model.Module {
	out := make([]model.Module, 0, len(mods))
	for _, m := range mods {
		if m.Filename == "" && m.Path != "" {
			m.Filename = baseName(m.Path)
		}
		if m.Filename == "" {
			continue
		}
		m.IsSystem = IsSystemModule(m.Filename, m.Path)
		m.IsGameExe = IsGameExe(m.Filename)
		m.IsHookFramework = c.IsHookFramework(m.Filename)
		if m.InferredModName == "" {
			m.InferredModName = InferModName(m.Path)
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	return out
}

// FindModule returns the index of the module containing addr in a list
// sorted by base address.
func FindModule(sorted []model.Module, addr uint64) (int, bool) {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i].Base > addr })
	if i == 0 {
		return 0, false
	}
	if sorted[i-1].Contains(addr) {
		return i - 1, true
	}
	return 0, false
}

// ResolveFault maps the exception address onto its module. An inferred mod
// name is dropped when the module is a system or game binary, or when the
// "name" is really just a file name.
func ResolveFault(sorted []model.Module, addr uint64) model.FaultSite {
	var f model.FaultSite
	if addr == 0 {
		return f
	}
	i, ok := FindModule(sorted, addr)
	if !ok {
		return f
	}
	m := sorted[i]
	f = model.FaultSite{
		Module:          m.Filename,
		Path:            m.Path,
		Offset:          addr - m.Base,
		InferredModName: m.InferredModName,
		IsSystem:        m.IsSystem,
		IsGameExe:       m.IsGameExe,
		IsHookFramework: m.IsHookFramework,
	}
	if f.InferredModName != "" {
		name := strings.ToLower(f.InferredModName)
		binary := strings.HasSuffix(name, ".dll") || strings.HasSuffix(name, ".exe")
		if f.IsSystem || f.IsGameExe || binary || name == strings.ToLower(f.Module) {
			f.InferredModName = ""
		}
	}
	return f
}

// ModuleNames lists the file names of mods in order.
func ModuleNames(mods []model.Module) []string {
	out := make([]string, 0, len(mods))
	for _, m := range mods {
		out = append(out, m.Filename)
	}
	return out
}

// ModuleVersions maps lower-case file names to the file versions recorded at
// capture time. Modules without a version are left out.
func ModuleVersions(mods []model.Module) map[string]string {
	out := make(map[string]string, len(mods))
	for _, m := range mods {
		if m.Filename != "" && m.Version != "" {
			out[strings.ToLower(m.Filename)] = m.Version
		}
	}
	return out
}
