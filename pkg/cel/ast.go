// Package cel implements the CEL-subset expression engine: lexer,
// recursive-descent parser, typed AST, and tree-walking evaluator over
// the dynamic value universe in pkg/value. This is not Google's CEL —
// it is the small grammar specified for conditions, asserts, until
// clauses, parameter bindings, and calculated overrides.
package cel

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	UnaryNot UnaryOp = iota
	UnaryNeg
)

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	BinAnd BinaryOp = iota
	BinOr
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
	BinIn
	BinAdd
	BinSub
	BinMul
	BinDiv
	BinMod
)

// NodeKind selects which of Node's fields are meaningful for a node.
type NodeKind int

const (
	NodeNull NodeKind = iota
	NodeBool
	NodeInteger
	NodeDecimal
	NodeString
	NodeIdentifier
	NodeList
	NodeUnary
	NodeBinary
	NodeTernary
	NodeMember
	NodeIndex
	NodeCall
)

// Node is an immutable AST node; the tree is built bottom-up by the
// parser and only ever read by the evaluator.
type Node struct {
	Kind NodeKind

	BoolValue   bool
	IntDigits   string // raw digit string, arbitrary precision
	DecimalText string // raw decimal literal text
	StringValue string
	Name        string // Identifier / Member property / Call callee (when Member)

	Children []*Node // List items, Call args

	UnaryOp UnaryOp
	Operand *Node

	BinOp BinaryOp
	Left  *Node
	Right *Node

	Cond *Node // Ternary condition
	Then *Node
	Else *Node

	Object   *Node // Member/Index/Call receiver
	Property string // Member property name
	IndexOp  *Node // Index expression

	Callee *Node   // Call callee expression (Identifier or Member)
	Args   []*Node
}
