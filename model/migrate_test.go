package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/hearthchat/server/model"
	"github.com/hearthchat/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Account + profile
	acc := &model.Account{Username: "test user", PasswordHash: "hash", Status: model.AccountNormal}
	require.NoError(t, db.Create(acc).Error)
	assert.Greater(t, acc.ID, int64(0))
	require.NoError(t, db.Create(&model.Profile{AccountID: acc.ID, DisplayUsername: "test user"}).Error)

	var found model.Account
	require.NoError(t, db.Preload("Profile").First(&found, acc.ID).Error)
	assert.Equal(t, "test user", found.Username)
	assert.Equal(t, "test user", found.Profile.DisplayUsername)

	// Relationship
	other := &model.Account{Username: "other", PasswordHash: "hash"}
	require.NoError(t, db.Create(other).Error)
	rel := &model.Relationship{Status: model.RelationPending}
	rel.SetParties(other.ID, acc.ID)
	require.NoError(t, db.Create(rel).Error)
	assert.Equal(t, acc.ID, rel.UserLow)
	assert.Equal(t, other.ID, rel.UserHigh)

	// AuditLog
	al := &model.AuditLog{
		TraceID: "trace-001", Action: "friend.add",
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.Create(al).Error)
}

func TestRelationship_UniquePair(t *testing.T) {
	db := testutil.SetupTestDB(t)

	first := &model.Relationship{Status: model.RelationPending}
	first.SetParties(1, 2)
	require.NoError(t, db.Create(first).Error)

	// Same unordered pair in the opposite direction.
	second := &model.Relationship{Status: model.RelationPending}
	second.SetParties(2, 1)
	err := db.Create(second).Error
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)

	var count int64
	db.Model(&model.Relationship{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRelationship_SelfRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)

	rel := &model.Relationship{RequesterID: 5, AddresseeID: 5, Status: model.RelationBlocked}
	err := db.Create(rel).Error
	assert.ErrorIs(t, err, model.ErrSelfRelation)
}

func TestRelationship_BeforeSaveCanonicalizes(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Direction fields set without SetParties still get a canonical pair.
	rel := &model.Relationship{RequesterID: 9, AddresseeID: 3, Status: model.RelationBlocked}
	require.NoError(t, db.Create(rel).Error)
	assert.Equal(t, int64(3), rel.UserLow)
	assert.Equal(t, int64(9), rel.UserHigh)
	assert.Equal(t, int64(3), rel.Other(9))
	assert.Equal(t, int64(9), rel.Other(3))
}
