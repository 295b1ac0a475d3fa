package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrowserCloseBeforeUse(t *testing.T) {
	b := newBrowser(true, discardLogger())
	assert.NotPanics(t, b.close)
}

func TestBrowserReportsLaunchFailure(t *testing.T) {
	b := newBrowser(true, discardLogger())
	b.once.Do(func() { b.startErr = errors.New("chrome executable not found") })

	// Every render shares the one failed launch instead of starting Chrome again
	for i := 0; i < 2; i++ {
		_, err := b.render(context.Background(), "https://www.realestate.com.au/property-house-vic-richmond-1")
		assert.EqualError(t, err, "chrome executable not found")
	}
	assert.Nil(t, b.browserCtx)
	b.close()
}
