package rest

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/hearthchat/server/account"
	"github.com/hearthchat/server/social"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{social.ErrSelfRelation, http.StatusBadRequest},
		{account.ErrInvalidCredentials, http.StatusUnauthorized},
		{social.ErrForbidden, http.StatusForbidden},
		{account.ErrAccountBanned, http.StatusForbidden},
		{social.ErrUserNotFound, http.StatusNotFound},
		{social.ErrRequestNotFound, http.StatusNotFound},
		{social.ErrRelationNotFound, http.StatusNotFound},
		{social.ErrAlreadyRelated, http.StatusConflict},
		{account.ErrUsernameTaken, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", social.ErrForbidden), http.StatusForbidden},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, msg := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.NotEmpty(t, msg)
	}

	_, msg := classify(errors.New("secret detail"))
	assert.Equal(t, "internal server error", msg)
}

func TestMessageFor_Fallbacks(t *testing.T) {
	assert.Equal(t, "Username must be between 1 and 20 characters long", messageFor("credentials", "username", "max"))
	assert.Equal(t, "Username must only have characters numbers and spaces", messageFor("credentials", "username", "usernamechars"))
	assert.Equal(t, "Invalid value", messageFor("unknown", "x", "y"))
}
