package gen

import (
	"go/types"
	"path"
	"sort"
	"strconv"
)

// importSet assigns file-local names to the packages a generated file
// refers to. Runtime packages are reserved first so their names stay fixed.
type importSet struct {
	self   *types.Package
	byPath map[string]string
	taken  map[string]string
	used   map[string]bool
}

func newImportSet(self *types.Package) *importSet {
	s := &importSet{
		self:   self,
		byPath: make(map[string]string),
		taken:  make(map[string]string),
		used:   make(map[string]bool),
	}
	for _, imp := range runtimeImports {
		s.byPath[imp.path] = imp.name
		s.taken[imp.name] = imp.path
	}
	return s
}

var runtimeImports = []struct{ name, path string }{
	{"reflect", "reflect"},
	{"sync", "sync"},
	{"member", "github.com/ppiankov/interpose/member"},
	{"pipeline", "github.com/ppiankov/interpose/pipeline"},
	{"proxy", "github.com/ppiankov/interpose/proxy"},
}

// use marks a runtime package as referenced and returns its local name.
func (s *importSet) use(path string) string {
	s.used[path] = true
	return s.byPath[path]
}

// qualifier is the types.Qualifier of the generated file.
func (s *importSet) qualifier(p *types.Package) string {
	if p == nil || p.Path() == s.self.Path() {
		return ""
	}
	s.used[p.Path()] = true
	if name, ok := s.byPath[p.Path()]; ok {
		return name
	}
	name := p.Name()
	for i := 2; s.taken[name] != ""; i++ {
		name = p.Name() + strconv.Itoa(i)
	}
	s.byPath[p.Path()] = name
	s.taken[name] = p.Path()
	return name
}

func (s *importSet) views() []importView {
	var out []importView
	for p := range s.used {
		v := importView{Path: p}
		if name := s.byPath[p]; name != path.Base(p) {
			v.Name = name
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
