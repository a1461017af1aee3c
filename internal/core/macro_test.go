package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacroRegistry_Register(t *testing.T) {
	r := NewMacroRegistry()
	noop := func(b *Builder, _ ...any) *Builder { return b }

	require.NoError(t, r.Register("active", noop))
	assert.True(t, r.Has("active"))

	tests := []struct {
		name string
		fn   MacroFunc
	}{
		{"", noop},
		{"nilFunc", nil},
		{"Where", noop},
		{"active", noop},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, r.Register(tt.name, tt.fn), ErrInvalidArgument, "name %q", tt.name)
	}

	require.NoError(t, r.Register("archived", noop))
	assert.Equal(t, []string{"active", "archived"}, r.Names())
}

func TestBuilder_Macro(t *testing.T) {
	r := NewMacroRegistry()
	require.NoError(t, r.Register("popular", func(b *Builder, args ...any) *Builder {
		return b.Where("votes", ">", args[0]).OrderBy("votes", "desc")
	}))
	require.NoError(t, r.Register("touch", func(*Builder, ...any) *Builder { return nil }))

	conn, _ := newMockConnection(t, "mysql", WithMacros(r))
	assert.Same(t, r, conn.Macros())

	b := conn.Table("posts").Macro("popular", 100).Macro("touch")
	sql, err := b.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "select * from `posts` where `votes` > ? order by `votes` desc", sql)
	assert.Equal(t, []any{100}, b.Bindings())

	_, err = conn.Table("posts").Macro("missing").ToSQL()
	assert.ErrorIs(t, err, ErrMacroNotFound)

	_, err = sqlFor("mysql").From("posts").Macro("popular", 1).ToSQL()
	assert.ErrorIs(t, err, ErrMacroNotFound)
}

func TestMacroRegistry_Concurrent(t *testing.T) {
	r := NewMacroRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := "m" + string(rune('a'+i))
			_ = r.Register(name, func(b *Builder, _ ...any) *Builder { return b })
			_ = r.Has(name)
			_ = r.Names()
		}()
	}
	wg.Wait()
	assert.Len(t, r.Names(), 20)
}
