// Package hash keeps short-lived secrets out of storage: one-time codes are
// persisted as a keyed digest and checked by recomputing it.
package hash

type Hash interface {
	Hash(str string) ([]byte, error)
	Verify(hashed, str string) bool
}
