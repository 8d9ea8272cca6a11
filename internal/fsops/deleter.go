package fsops

import (
	"fmt"

	"github.com/spf13/afero"
)

// Deleter abstracts the single destructive call the crawler makes.
// Swapping it out in tests proves that dry runs never delete.
type Deleter interface {
	Remove(path string) error
}

// AferoDeleter removes paths from an afero filesystem.
type AferoDeleter struct {
	Fs afero.Fs
}

func (d AferoDeleter) Remove(path string) error {
	return d.Fs.Remove(path)
}

// Validator authorizes a delete target before it reaches the filesystem.
type Validator interface {
	ValidateDeleteTarget(path string) error
}

// GuardedDeleter refuses any path the validator rejects.
type GuardedDeleter struct {
	Validator Validator
	Next      Deleter
}

// Guard wraps next so every removal is validated first.
func Guard(v Validator, next Deleter) *GuardedDeleter {
	return &GuardedDeleter{Validator: v, Next: next}
}

func (g *GuardedDeleter) Remove(path string) error {
	if err := g.Validator.ValidateDeleteTarget(path); err != nil {
		return fmt.Errorf("refusing to delete %s: %w", path, err)
	}
	return g.Next.Remove(path)
}
