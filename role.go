package main

// RoleTable is the process-wide, read-only-after-start table of named
// capability-token grants described in SPEC_FULL.md section 3. It
// generalizes the donor's single implicit "oper" role
// (Config.Opers map[string]string, checked only by the OPER command in
// local_user.go's operCommand) into named roles a session can reference by
// name.
type RoleTable struct {
	roles map[string]map[string]struct{} // role name -> set of tokens
}

// NewRoleTable builds a RoleTable from the role->tokens map decoded out of
// Config.Roles.
func NewRoleTable(defs map[string][]string) *RoleTable {
	rt := &RoleTable{roles: map[string]map[string]struct{}{}}
	for name, tokens := range defs {
		set := map[string]struct{}{}
		for _, t := range tokens {
			set[t] = struct{}{}
		}
		rt.roles[name] = set
	}
	return rt
}

// Has reports whether the named role grants the given token. An unknown
// role name grants nothing.
func (rt *RoleTable) Has(roleName, token string) bool {
	tokens, ok := rt.roles[roleName]
	if !ok {
		return false
	}
	_, ok = tokens[token]
	return ok
}
