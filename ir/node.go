package ir

// Node is a declaration that owns functions: a module or a type definition.
// The variant set is closed.
type Node interface {
	node()
	NodeName() string
	OwnedFunctions() []*Function
}

func (*Module) node()  {}
func (*TypeDef) node() {}

func (m *Module) NodeName() string  { return m.ID.String() }
func (t *TypeDef) NodeName() string { return t.Name }

func (m *Module) OwnedFunctions() []*Function  { return m.Functions }
func (t *TypeDef) OwnedFunctions() []*Function { return t.Functions }

// Nodes returns the module followed by its type definitions.
func (m *Module) Nodes() []Node {
	nodes := make([]Node, 0, 1+len(m.TypeDefs))
	nodes = append(nodes, m)
	for _, td := range m.TypeDefs {
		nodes = append(nodes, td)
	}
	return nodes
}
