package snapshot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	assert.Equal(t, "hello big world", CleanText("  hello \n\t big   world \n", 100))
	assert.Equal(t, "hello", CleanText("hello world", 5))
	assert.Equal(t, "hello", CleanText("hello world", 6))
	assert.Equal(t, "héllo w", CleanText("héllo world", 7))
	assert.Equal(t, "", CleanText(" \n ", 10))
}

func TestCaptureDataURL(t *testing.T) {
	if os.Getenv("UNALOG_TEST_CHROME") == "" || !Available() {
		t.Skip("set UNALOG_TEST_CHROME with chromium installed to run")
	}
	page, err := NewChrome(30*time.Second).Capture(context.Background(),
		"data:text/html,<title>Hi</title><body><p>saved%20page</p></body>")
	require.NoError(t, err)
	assert.Equal(t, "Hi", page.Title)
	assert.Contains(t, page.Text, "saved page")
}
