package sqlcheck

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Walk visits every message in the parse tree in field order, calling
// visit with the concrete node. Returning false stops the walk.
//
// The parse tree is protobuf, so protobuf reflection gives a complete
// traversal without enumerating every node kind the parser can emit.
func Walk(tree *pg_query.ParseResult, visit func(n interface{}) bool) {
	if tree == nil {
		return
	}
	walkMessage(tree.ProtoReflect(), visit)
}

// walkNode walks a single parse node subtree.
func walkNode(node *pg_query.Node, visit func(n interface{}) bool) {
	if node == nil {
		return
	}
	walkMessage(node.ProtoReflect(), visit)
}

func walkMessage(m protoreflect.Message, visit func(n interface{}) bool) bool {
	if !m.IsValid() {
		return true
	}
	if !visit(m.Interface()) {
		return false
	}

	cont := true
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsList() && fd.Kind() == protoreflect.MessageKind:
			list := v.List()
			for i := 0; i < list.Len(); i++ {
				if !walkMessage(list.Get(i).Message(), visit) {
					cont = false
					return false
				}
			}
		case fd.IsMap():
			// The parse tree has no map fields.
		case fd.Kind() == protoreflect.MessageKind:
			if !walkMessage(v.Message(), visit) {
				cont = false
				return false
			}
		}
		return true
	})
	return cont
}
