package trie

import (
	"fmt"

	"github.com/emicklei/dot"
)

// Dot renders the resolved part of the trie as a graphviz graph, one graph
// node per trie node. Unresolved references show up as hash leaves; the store
// is never touched.
func (t *Trie) Dot() *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	t.dotNode(g, t.root, "root")
	return g
}

func (t *Trie) dotNode(g *dot.Graph, n node, path string) dot.Node {
	switch n := n.(type) {
	case *shortNode:
		dn := g.Node(path).Label(fmt.Sprintf("short %x", n.Key))
		g.Edge(dn, t.dotNode(g, n.Val, path+".v"))
		return dn
	case *fullNode:
		dn := g.Node(path).Label("full")
		for i, c := range &n.Children {
			if c != nil {
				g.Edge(dn, t.dotNode(g, c, fmt.Sprintf("%s.%x", path, i)), indices[i])
			}
		}
		return dn
	case hashNode:
		return g.Node(path).Label(fmt.Sprintf("hash %x", []byte(n)[:4]))
	case valueNode:
		return g.Node(path).Label(fmt.Sprintf("value %x", []byte(n)))
	default:
		return g.Node(path).Label("nil")
	}
}
