package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/hioload-echo/internal/session"
)

func TestRegistry(t *testing.T) {
	r := session.NewRegistry(3)
	a := session.New(newFakeStream(), nil)
	b := session.New(newFakeStream(eof()), nil)

	r.Add(a)
	r.Add(b)
	assert.Equal(t, 2, r.Len())

	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, ids(r))

	_ = b.Run(context.Background())
	assert.Equal(t, map[string]int{"starting": 1, "closed": 1}, r.CountByStatus())

	r.Remove(b.ID())
	r.Remove("missing")
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{a.ID()}, ids(r))
}

func ids(r *session.Registry) []string {
	var out []string
	r.Range(func(s *session.Session) { out = append(out, s.ID()) })
	return out
}

func TestRegistryConcurrent(t *testing.T) {
	r := session.NewRegistry(0)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := session.New(newFakeStream(), nil)
			r.Add(s)
			r.Remove(s.ID())
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}
