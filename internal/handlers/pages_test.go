package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MoAbeds/agent-testx/internal/cms"
	"github.com/MoAbeds/agent-testx/internal/seo"
)

func TestBuildPageData(t *testing.T) {
	meta := seo.Meta{Title: "About Us", Description: "Learn more"}

	vm := BuildPageData("/about", meta, cms.Page{Title: "About", Description: "Who we are", Body: "<p>hi</p>"}, Analytics{GA4MeasurementID: "G-1"})
	assert.Equal(t, "About Us", vm.Title)
	assert.Equal(t, "Learn more", vm.Description)
	assert.Equal(t, "About", vm.Heading)
	assert.Equal(t, "Who we are", vm.Summary)
	assert.Equal(t, "<p>hi</p>", string(vm.Body))
	assert.True(t, vm.Analytics.Enabled())
	assert.Len(t, vm.Breadcrumbs, 2)

	vm = BuildPageData("/contact", meta, cms.Page{}, Analytics{})
	assert.Equal(t, "About Us", vm.Heading)
	assert.Empty(t, vm.Body)
	assert.False(t, vm.Analytics.Enabled())
}
