package oauth

import "strings"

// ParseScope parsea el formato wire space-delimited a un set de scopes.
// Retorna nil para un scope ausente o vacío.
func ParseScope(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// JoinScope serializa un set de scopes al formato wire.
func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// NarrowScope reconcilia el scope pedido contra el otorgado: un request vacío
// significa "todo el scope otorgado"; si no, requested debe ser subconjunto
// de granted (insensible al orden). ok=false si pide algo nunca otorgado.
func NarrowScope(granted, requested []string) (scope []string, ok bool) {
	if len(requested) == 0 {
		return granted, true
	}
	set := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		set[s] = struct{}{}
	}
	for _, s := range requested {
		if _, has := set[s]; !has {
			return nil, false
		}
	}
	return requested, true
}
