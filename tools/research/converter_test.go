package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Community Health Grants 2026</title></head>
<body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<article>
<h1>Community Health Grants 2026</h1>
<p>The Acme Foundation awards grants between $50,000 and $200,000 to
community health programs serving rural populations. Applications close on
March 15.</p>
<p>Eligible organizations must demonstrate at least two years of direct
service delivery and provide a detailed budget narrative.</p>
</article>
<footer>Copyright 2026</footer>
</body>
</html>`

func TestConverter_Convert(t *testing.T) {
	c := NewConverter()

	content, err := c.Convert([]byte(samplePage), "https://example.org/grants")
	require.NoError(t, err)

	assert.Equal(t, "Community Health Grants 2026", content.Title)
	assert.Contains(t, content.Markdown, "Acme Foundation")
	assert.Contains(t, content.Markdown, "$50,000")
	// Boilerplate is stripped by the readability pass
	assert.NotContains(t, content.Markdown, "Copyright 2026")
}

func TestConverter_InvalidURL(t *testing.T) {
	c := NewConverter()
	_, err := c.Convert([]byte(samplePage), "://bad")
	assert.Error(t, err)
}

func TestExtractHTMLTitle(t *testing.T) {
	assert.Equal(t, "Hello", extractHTMLTitle([]byte(`<html><head><title> Hello </title></head></html>`)))
	assert.Equal(t, "", extractHTMLTitle([]byte(`<html><body><p>no title</p></body></html>`)))
}
