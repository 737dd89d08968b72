package includes

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func partials() fstest.MapFS {
	return fstest.MapFS{
		"nav.html":          {Data: []byte("<nav>menu</nav>")},
		"footer.html":       {Data: []byte("<footer>&copy; DF</footer>")},
		"nested.html":       {Data: []byte("<div><!--include:nav.html--></div>")},
		"sections/cta.html": {Data: []byte("<a href=\"/contact\">Talk</a>")},
	}
}

func TestExpand_SubstitutesPartials(t *testing.T) {
	in := New(partials())

	res := in.Expand("<body><!--include:nav.html-->\n<main/>\n<!-- include:footer.html --></body>")
	require.Empty(t, res.Missing)
	require.Equal(t, "<body><nav>menu</nav>\n<main/>\n<footer>&copy; DF</footer></body>", res.HTML)
}

func TestExpand_SubdirectoryPartial(t *testing.T) {
	res := New(partials()).Expand("<!--include:sections/cta.html-->")
	require.Equal(t, `<a href="/contact">Talk</a>`, res.HTML)
}

func TestExpand_MissingPartialKeepsMarker(t *testing.T) {
	in := New(partials())
	src := "<header><!--include:missing.html--></header><!--include:nav.html-->"

	res := in.Expand(src)
	require.Equal(t, []string{"missing.html"}, res.Missing)
	require.Equal(t, "<header><!--include:missing.html--></header><nav>menu</nav>", res.HTML)
}

func TestExpand_InvalidNamesAreMissing(t *testing.T) {
	in := New(partials())
	res := in.Expand("<!--include:../secrets.html--><!--include:/etc/passwd-->")
	require.Equal(t, []string{"../secrets.html", "/etc/passwd"}, res.Missing)
	require.Equal(t, "<!--include:../secrets.html--><!--include:/etc/passwd-->", res.HTML)
}

func TestExpand_IncludedTextNotRescanned(t *testing.T) {
	res := New(partials()).Expand("<!--include:nested.html-->")
	require.Empty(t, res.Missing)
	require.Equal(t, "<div><!--include:nav.html--></div>", res.HTML)
}

func TestExpand_Idempotent(t *testing.T) {
	in := New(partials())
	first := in.Expand("<!--include:nav.html--><p>body</p>")
	second := in.Expand(first.HTML)
	require.Equal(t, first.HTML, second.HTML)
	require.Empty(t, second.Missing)
}

func TestExpand_NoPartialsDir(t *testing.T) {
	res := New(nil).Expand("<!--include:nav.html-->")
	require.Equal(t, []string{"nav.html"}, res.Missing)
	require.Equal(t, "<!--include:nav.html-->", res.HTML)
}

func TestMarkers(t *testing.T) {
	require.Equal(t, []string{"nav.html", "footer.html"},
		Markers("<!--include:nav.html--> x <!--  include:footer.html  -->"))
	require.Empty(t, Markers("<!-- plain comment -->"))
}

func TestExpand_AdjacentMarkersStaySeparate(t *testing.T) {
	res := New(partials()).Expand("<!--include:nav.html--><!--include:footer.html-->")
	require.Empty(t, res.Missing)
	require.Equal(t, "<nav>menu</nav><footer>&copy; DF</footer>", res.HTML)
}
