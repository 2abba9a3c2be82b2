// Package opaque declares types whose method signatures mention unexported
// types, for exercising the unsupported-member checks.
package opaque

type token struct{ n int }

// Handle exposes a method that returns an unexported type.
type Handle struct{}

func (Handle) Peek() token { return token{n: 1} }

// Secretive requires a method that cannot be implemented outside this package.
type Secretive interface {
	reveal() string
}

// Leaky requires an exported method whose signature uses an unexported type.
type Leaky interface {
	Leak() token
}
