package proxy

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/ppiankov/interpose/member"
)

type forwarding struct {
	members     []*member.Descriptor
	extended    []reflect.Type
	implemented []reflect.Type
}

// forward adds a member for every method of the additional interfaces that
// neither the target nor an earlier interface already provides. Indices
// continue from the target's own members. An interface whose whole method
// set is already provided, by *T itself or by members forwarded for an
// earlier interface, joins the implemented set and adds nothing, which
// makes requesting an interface twice, or an interface embedded in another
// requested one, a no-op. The interfaces that add members form the extended
// set; the two sets are disjoint. Forwarded signatures are checked against
// the target's package, where generated overrides are declared.
func forward(a *member.Analysis, interfaces []reflect.Type) (*forwarding, error) {
	provided := make(map[string]reflect.Type)
	for i := 0; i < a.Pointer.NumMethod(); i++ {
		m := a.Pointer.Method(i)
		provided[m.Name] = member.WithoutReceiver(m.Type)
	}

	fw := &forwarding{}
	byName := make(map[string]*member.Descriptor)
	next := len(a.Methods)

	for _, it := range interfaces {
		if a.Pointer.Implements(it) {
			fw.implemented = append(fw.implemented, it)
			continue
		}
		var fresh []reflect.Method
		for j := 0; j < it.NumMethod(); j++ {
			m := it.Method(j)
			if !m.IsExported() {
				return nil, configError(UnsupportedMember, it, m.Name,
					"unexported interface methods can only be implemented inside "+it.PkgPath())
			}
			if ft, ok := provided[m.Name]; ok {
				if ft != m.Type {
					return nil, configError(MemberCollision, it, m.Name,
						fmt.Sprintf("target declares %s, interface requires %s", ft, m.Type))
				}
				continue
			}
			if prev, ok := byName[m.Name]; ok {
				if prev.Func != m.Type {
					return nil, configError(MemberCollision, it, m.Name,
						fmt.Sprintf("%s already forwards %s", prev.DeclaringType, prev.Func))
				}
				continue
			}
			if t := foreignUnexported(m.Type, a.Type.PkgPath()); t != nil {
				return nil, configError(UnsupportedMember, it, m.Name,
					fmt.Sprintf("signature uses %s, which cannot be named outside %s", t, t.PkgPath()))
			}
			fresh = append(fresh, m)
		}

		if len(fresh) == 0 {
			fw.implemented = append(fw.implemented, it)
			continue
		}

		fw.extended = append(fw.extended, it)
		sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Name < fresh[j].Name })
		for _, m := range fresh {
			d := member.NewForwarded(it, m, next)
			next++
			byName[m.Name] = d
			fw.members = append(fw.members, d)
		}
	}
	return fw, nil
}
