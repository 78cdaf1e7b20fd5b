package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSocialProviders(t *testing.T) {
	assert.Equal(t, []Provider{ProviderGoogle, ProviderFacebook}, SocialProviders())
	assert.False(t, ProviderPassword.Social())
	assert.False(t, ProviderPhoneNumber.Social())
}
