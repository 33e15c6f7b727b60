package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowsFolder(t *testing.T) {
	s := NewScope([]string{"family"})

	tests := []struct {
		in   string
		want bool
	}{
		{"family", true},
		{"", true},
		{"/", true},
		{"family/2024", true},
		{"family/2024/summer", true},
		{"vacation", false},
		{"fam", false},
		{"family2", false},
		{"familyx/2024", false},
		{"../family", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, s.AllowsFolder(tt.in))
		})
	}
}

func TestAllowsFolder_NestedAssignment(t *testing.T) {
	s := NewScope([]string{"family/2024"})

	assert.True(t, s.AllowsFolder("family"), "ancestor")
	assert.True(t, s.AllowsFolder(""), "root")
	assert.True(t, s.AllowsFolder("family/2024/june"))
	assert.False(t, s.AllowsFolder("family/2023"))
	assert.False(t, s.AllowsFolder("family/202"))
}

func TestAllowsFile(t *testing.T) {
	s := NewScope([]string{"family/2024"})

	assert.True(t, s.AllowsFile("family/2024/a.jpg"))
	assert.True(t, s.AllowsFile("family/2024/june/b.jpg"))
	assert.False(t, s.AllowsFile("family/c.jpg"), "files never match as ancestors")
	assert.False(t, s.AllowsFile("root.jpg"))
	assert.False(t, s.AllowsFile("family/2023/d.jpg"))
}

func TestAllowsWrite(t *testing.T) {
	s := NewScope([]string{"family"})

	assert.True(t, s.AllowsWrite("family"))
	assert.True(t, s.AllowsWrite("family/new"))
	assert.False(t, s.AllowsWrite(""))
	assert.False(t, s.AllowsWrite("vacation"))
}

func TestUnrestricted(t *testing.T) {
	for _, s := range []Scope{nil, NewScope(nil), {}} {
		assert.True(t, s.Unrestricted())
		assert.True(t, s.AllowsFolder("anything/at/all"))
		assert.True(t, s.AllowsFile("x.jpg"))
		assert.True(t, s.AllowsWrite(""))
	}
}

func TestFilter(t *testing.T) {
	type entry struct {
		path string
		dir  bool
	}
	entries := []entry{
		{"family", true},
		{"vacation", true},
		{"fam", true},
		{"top.jpg", false},
		{"family/a.jpg", false},
	}
	relPath := func(e entry) string { return e.path }
	isDir := func(e entry) bool { return e.dir }

	got := Filter(NewScope([]string{"family"}), entries, relPath, isDir)
	assert.Equal(t, []entry{{"family", true}, {"family/a.jpg", false}}, got)

	assert.Equal(t, entries, Filter(nil, entries, relPath, isDir))
}
