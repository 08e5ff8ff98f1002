package web

import (
	"testing"

	"poemhub/testutil"
)

func TestHandlersDoNotReachIntoBackends(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.UnderPrefix("poemhub/internal/infra"), "handlers go through core.Service and the blob facade")
}
