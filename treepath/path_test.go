package treepath

import (
	"testing"

	gc "gopkg.in/check.v1"
)

type PathSuite struct{}

func (s *PathSuite) TestNormalize(c *gc.C) {
	for _, tc := range []struct{ in, out string }{
		{"", "/"},
		{"/", "/"},
		{"///", "/"},
		{"a", "/a"},
		{"/a/", "/a"},
		{"//a//b///c//", "/a/b/c"},
		{"games/ABCDE/board/0/3", "/games/ABCDE/board/0/3"},
	} {
		c.Check(Normalize(tc.in), gc.Equals, tc.out)
		// Normalize is idempotent.
		c.Check(Normalize(Normalize(tc.in)), gc.Equals, Normalize(tc.in))
	}
}

func (s *PathSuite) TestJoinAndSplit(c *gc.C) {
	c.Check(Join(), gc.Equals, "/")
	c.Check(Join("/games/", "ABCDE", "/players//p1"), gc.Equals, "/games/ABCDE/players/p1")
	c.Check(Child("/", "a"), gc.Equals, "/a")
	c.Check(Child("/a/b", "c"), gc.Equals, "/a/b/c")

	c.Check(Split("/"), gc.HasLen, 0)
	c.Check(Split("//a/b/"), gc.DeepEquals, []string{"a", "b"})
}

func (s *PathSuite) TestDepthParentAndBase(c *gc.C) {
	c.Check(Depth("/"), gc.Equals, 0)
	c.Check(Depth("/a/b/c"), gc.Equals, 3)

	c.Check(Parent("/"), gc.Equals, "/")
	c.Check(Parent("/a"), gc.Equals, "/")
	c.Check(Parent("/a/b/c"), gc.Equals, "/a/b")

	c.Check(Base("/"), gc.Equals, "")
	c.Check(Base("/a/b/c"), gc.Equals, "c")
}

func (s *PathSuite) TestIsAncestor(c *gc.C) {
	c.Check(IsAncestor("/", "/a"), gc.Equals, true)
	c.Check(IsAncestor("/a", "/a/b"), gc.Equals, true)
	c.Check(IsAncestor("/a", "/a"), gc.Equals, false)
	c.Check(IsAncestor("/a", "/ab"), gc.Equals, false)
	c.Check(IsAncestor("/a/b", "/a"), gc.Equals, false)
	c.Check(IsAncestor("/", "/"), gc.Equals, false)
}

func (s *PathSuite) TestRelative(c *gc.C) {
	var abs = []string{"games", "ABCDE", "board", "2"}

	c.Check(Relative(abs, 0), gc.DeepEquals, abs)
	c.Check(Relative(abs, 2), gc.DeepEquals, []string{"board", "2"})
	// The subscription root itself is the empty sequence.
	c.Check(Relative(abs, 4), gc.DeepEquals, []string{})
	c.Check(Relative(nil, 0), gc.DeepEquals, []string{})

	// Result does not alias the input.
	var rel = Relative(abs, 2)
	rel[0] = "other"
	c.Check(abs[2], gc.Equals, "board")
}

func (s *PathSuite) TestValidate(c *gc.C) {
	c.Check(Validate("/games/ABCDE"), gc.IsNil)
	c.Check(Validate("/"), gc.IsNil)
	c.Check(Validate("/games/a.b"), gc.ErrorMatches, `invalid path "/games/a.b": key "a.b" contains forbidden character '.'`)
	c.Check(Validate("/games/$x"), gc.ErrorMatches, `.*forbidden character '\$'`)
	c.Check(Validate("/a/b\tc"), gc.ErrorMatches, `.*forbidden character '\\t'`)

	c.Check(ValidateKey(""), gc.ErrorMatches, "empty key")
	c.Check(ValidateKey("a/b"), gc.ErrorMatches, `.*forbidden character '/'`)
}

var _ = gc.Suite(&PathSuite{})

func Test(t *testing.T) { gc.TestingT(t) }
