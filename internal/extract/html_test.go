package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHTML(t *testing.T) {
	longPara := strings.Repeat("Researchers measured the spin of a distant black hole. ", 3)

	tests := []struct {
		name        string
		html        string
		wantTitle   string
		wantSnippet string
	}{
		{
			name: "Open Graph Wins",
			html: `<html><head>
				<meta property="og:title" content="OG Title">
				<meta name="twitter:title" content="Twitter Title">
				<title>Doc Title</title>
				<meta property="og:description" content="OG description text">
				<meta name="description" content="Meta description">
				</head><body><h1>Heading</h1></body></html>`,
			wantTitle:   "OG Title",
			wantSnippet: "OG description text",
		},
		{
			name: "Twitter Then Description",
			html: `<html><head>
				<meta name="twitter:title" content="Twitter Title">
				<title>Doc Title</title>
				<meta name="description" content="Meta description">
				</head></html>`,
			wantTitle:   "Twitter Title",
			wantSnippet: "Meta description",
		},
		{
			name:        "Title Tag And Long Paragraph",
			html:        `<html><head><title>Doc &amp; Title</title></head><body><p>Short.</p><p>` + longPara + `</p></body></html>`,
			wantTitle:   "Doc & Title",
			wantSnippet: strings.TrimSpace(longPara),
		},
		{
			name:        "First H1",
			html:        `<html><body><h1>The <em>Big</em> Heading</h1><h1>Second</h1></body></html>`,
			wantTitle:   "The Big Heading",
			wantSnippet: "",
		},
		{
			name:        "Entities In Meta Are Decoded",
			html:        `<meta property="og:title" content="Cells &amp;#39;talk&amp;#39; &lt;b&gt;loudly&lt;/b&gt;">`,
			wantTitle:   "Cells 'talk' loudly",
			wantSnippet: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := ParseHTML(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, page.Title)
			assert.Equal(t, tt.wantSnippet, page.Snippet)
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "A & B", CleanText("  A &amp; B "))
	assert.Equal(t, "bold text", CleanText("<b>bold</b>\n\ttext"))
	assert.Equal(t, "", CleanText("<br/>"))
}
