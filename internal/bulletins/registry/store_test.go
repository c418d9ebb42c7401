package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

func TestParsePageID(t *testing.T) {
	for _, tc := range []struct {
		in    string
		valid bool
	}{
		{"page1", true},
		{"page2", true},
		{"page3", true},
		{"page4", false},
		{"", false},
		{"Page1", false},
		{" page1", false},
		{"../page1", false},
	} {
		page, ok := ParsePageID(tc.in)
		assert.Equal(t, tc.valid, ok, tc.in)
		assert.Equal(t, PageID(tc.in), page)
	}
}

func TestFromRaw(t *testing.T) {
	reg := fromRaw(map[string]string{
		"page1":  "/uploads/page1-1.png",
		"page3":  "",
		"page9":  "/uploads/page9-1.png",
		"banner": "/x.png",
	}, "test")
	assert.Equal(t, Registry{Page1: "/uploads/page1-1.png"}, reg)
}

func TestRegistry_Clone(t *testing.T) {
	reg := Registry{Page1: "a"}
	c := reg.Clone()
	c[Page2] = "b"
	assert.Len(t, reg, 1)
	assert.Len(t, c, 2)
}
