package compiler

import (
	"fmt"
	"strings"
)

// generateGlue returns the functions appended to a unit so the host can
// construct its types and call their methods through reflection. Interpreted
// methods are not reachable via reflect, plain functions are.
func generateGlue(decls []*typeDecl) string {
	var b strings.Builder
	b.WriteString("\n\n// Code generated by hotswap. DO NOT EDIT.\n")

	for i, td := range decls {
		td.glue = fmt.Sprintf("%s%d", glueNewPrefix, i)
		body := "&" + td.Name + "{}"
		if td.Ctor != "" {
			body = td.Ctor + "()"
		}
		fmt.Fprintf(&b, "\nfunc %s() *%s { return %s }\n", td.glue, td.Name, body)

		for j, m := range td.Methods {
			m.glue = fmt.Sprintf("%s%d_%d", glueCallPrefix, i, j)

			params := []string{"r *" + td.Name}
			args := make([]string, 0, len(m.Params))
			for k, p := range m.Params {
				name := fmt.Sprintf("a%d", k)
				params = append(params, name+" "+p.TypeName)
				if m.Variadic && k == len(m.Params)-1 {
					name += "..."
				}
				args = append(args, name)
			}

			call := fmt.Sprintf("r.%s(%s)", m.Name, strings.Join(args, ", "))
			var results string
			switch len(m.Results) {
			case 0:
			case 1:
				results = " " + m.Results[0]
				call = "return " + call
			default:
				results = " (" + strings.Join(m.Results, ", ") + ")"
				call = "return " + call
			}
			fmt.Fprintf(&b, "func %s(%s)%s { %s }\n", m.glue, strings.Join(params, ", "), results, call)
		}
	}
	return b.String()
}
